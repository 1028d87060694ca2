package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webchat_messages_sent_total",
		Help: "Total messages appended.",
	})
	MessagesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webchat_messages_deleted_total",
		Help: "Total messages soft-deleted.",
	})
	ReactionsToggled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webchat_reactions_toggled_total",
		Help: "Total reaction toggles applied.",
	})

	DirectConversations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webchat_direct_conversations_total",
		Help: "Total direct conversation get-or-create calls.",
	})
	GroupConversations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webchat_group_conversations_total",
		Help: "Total group conversations created.",
	})
)

func Register() {
	prometheus.MustRegister(
		MessagesSent, MessagesDeleted, ReactionsToggled,
		DirectConversations, GroupConversations,
	)
}
