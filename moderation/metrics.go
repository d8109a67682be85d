package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportsFiledCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "whisperwall_reports_filed_total",
	Help: "The total number of abuse reports accepted by the ledger",
})

var duplicateReportsCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "whisperwall_reports_duplicate_total",
	Help: "The total number of reports rejected as duplicates",
})

var publicationsFlaggedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "whisperwall_publications_flagged_total",
	Help: "The total number of automatic active to flagged transitions",
})

var publicationsRemovedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "whisperwall_publications_removed_total",
	Help: "The total number of publications removed",
})

var moderationDecisionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whisperwall_moderation_decisions_total",
	Help: "Admin decisions applied to flagged publications",
}, []string{"decision"})
