package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/quotebridge-backend/internal/data/repos/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/data/repos/notify"
	"github.com/yungbote/quotebridge-backend/internal/data/repos/proposals"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type ProjectRepo = proposals.ProjectRepo
type ProposalRepo = proposals.ProposalRepo
type ProposalVersionRepo = proposals.ProposalVersionRepo
type ProposalLineItemRepo = proposals.ProposalLineItemRepo

type NegotiationSessionRepo = negotiation.SessionRepo
type LineItemNegotiationRepo = negotiation.LineItemNegotiationRepo
type NegotiationCommentRepo = negotiation.CommentRepo
type NegotiationAttachmentRepo = negotiation.AttachmentRepo
type BulkBatchRepo = negotiation.BatchRepo
type BulkBatchMemberRepo = negotiation.BatchMemberRepo

type OutboxRepo = notify.OutboxRepo

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return proposals.NewProjectRepo(db, baseLog)
}
func NewProposalRepo(db *gorm.DB, baseLog *logger.Logger) ProposalRepo {
	return proposals.NewProposalRepo(db, baseLog)
}
func NewProposalVersionRepo(db *gorm.DB, baseLog *logger.Logger) ProposalVersionRepo {
	return proposals.NewProposalVersionRepo(db, baseLog)
}
func NewProposalLineItemRepo(db *gorm.DB, baseLog *logger.Logger) ProposalLineItemRepo {
	return proposals.NewProposalLineItemRepo(db, baseLog)
}

func NewNegotiationSessionRepo(db *gorm.DB, baseLog *logger.Logger) NegotiationSessionRepo {
	return negotiation.NewSessionRepo(db, baseLog)
}
func NewLineItemNegotiationRepo(db *gorm.DB, baseLog *logger.Logger) LineItemNegotiationRepo {
	return negotiation.NewLineItemNegotiationRepo(db, baseLog)
}
func NewNegotiationCommentRepo(db *gorm.DB, baseLog *logger.Logger) NegotiationCommentRepo {
	return negotiation.NewCommentRepo(db, baseLog)
}
func NewNegotiationAttachmentRepo(db *gorm.DB, baseLog *logger.Logger) NegotiationAttachmentRepo {
	return negotiation.NewAttachmentRepo(db, baseLog)
}
func NewBulkBatchRepo(db *gorm.DB, baseLog *logger.Logger) BulkBatchRepo {
	return negotiation.NewBatchRepo(db, baseLog)
}
func NewBulkBatchMemberRepo(db *gorm.DB, baseLog *logger.Logger) BulkBatchMemberRepo {
	return negotiation.NewBatchMemberRepo(db, baseLog)
}

func NewOutboxRepo(db *gorm.DB, baseLog *logger.Logger) OutboxRepo {
	return notify.NewOutboxRepo(db, baseLog)
}
