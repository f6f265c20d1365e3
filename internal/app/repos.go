package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type Repos struct {
	Project          repos.ProjectRepo
	Proposal         repos.ProposalRepo
	ProposalVersion  repos.ProposalVersionRepo
	ProposalLineItem repos.ProposalLineItemRepo

	NegotiationSession    repos.NegotiationSessionRepo
	LineItemNegotiation   repos.LineItemNegotiationRepo
	NegotiationComment    repos.NegotiationCommentRepo
	NegotiationAttachment repos.NegotiationAttachmentRepo
	BulkBatch             repos.BulkBatchRepo
	BulkBatchMember       repos.BulkBatchMemberRepo

	Outbox repos.OutboxRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Project:          repos.NewProjectRepo(db, log),
		Proposal:         repos.NewProposalRepo(db, log),
		ProposalVersion:  repos.NewProposalVersionRepo(db, log),
		ProposalLineItem: repos.NewProposalLineItemRepo(db, log),

		NegotiationSession:    repos.NewNegotiationSessionRepo(db, log),
		LineItemNegotiation:   repos.NewLineItemNegotiationRepo(db, log),
		NegotiationComment:    repos.NewNegotiationCommentRepo(db, log),
		NegotiationAttachment: repos.NewNegotiationAttachmentRepo(db, log),
		BulkBatch:             repos.NewBulkBatchRepo(db, log),
		BulkBatchMember:       repos.NewBulkBatchMemberRepo(db, log),

		Outbox: repos.NewOutboxRepo(db, log),
	}
}
