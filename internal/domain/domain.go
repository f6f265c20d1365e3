package domain

import (
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
)

type Project = proposals.Project
type Proposal = proposals.Proposal
type ProposalVersion = proposals.ProposalVersion
type ProposalLineItem = proposals.ProposalLineItem

type NegotiationSession = negotiation.NegotiationSession
type LineItemNegotiation = negotiation.LineItemNegotiation
type NegotiationComment = negotiation.NegotiationComment
type NegotiationAttachment = negotiation.NegotiationAttachment
type BulkNegotiationBatch = negotiation.BulkNegotiationBatch
type BulkNegotiationMember = negotiation.BulkNegotiationMember

type NotificationOutbox = notify.NotificationOutbox

// AllModels lists every persisted row type in migration order.
func AllModels() []any {
	return []any{
		&Project{},
		&Proposal{},
		&ProposalVersion{},
		&ProposalLineItem{},

		&NegotiationSession{},
		&LineItemNegotiation{},
		&NegotiationComment{},
		&NegotiationAttachment{},
		&BulkNegotiationBatch{},
		&BulkNegotiationMember{},

		&NotificationOutbox{},
	}
}
