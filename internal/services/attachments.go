package services

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/gcp"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const defaultAttachmentURLTTL = 15 * time.Minute

type AttachmentRequest struct {
	StoragePath string `json:"storage_path"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

type AttachmentView struct {
	*types.NegotiationAttachment
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// AttachmentService records opaque blob references on a session and hands out
// time-limited read URLs. Upload itself happens directly against the store.
type AttachmentService interface {
	AddAttachment(ctx context.Context, actorID, sessionID uuid.UUID, req AttachmentRequest) (*types.NegotiationAttachment, error)
	ListAttachments(ctx context.Context, actorID, sessionID uuid.UUID) ([]AttachmentView, error)
}

type attachmentService struct {
	log         *logger.Logger
	sessions    repos.NegotiationSessionRepo
	attachments repos.NegotiationAttachmentRepo
	store       gcp.AttachmentStore
	ttl         time.Duration
}

func NewAttachmentService(baseLog *logger.Logger, sessions repos.NegotiationSessionRepo, attachments repos.NegotiationAttachmentRepo, store gcp.AttachmentStore, ttl time.Duration) AttachmentService {
	if ttl <= 0 {
		ttl = defaultAttachmentURLTTL
	}
	return &attachmentService{
		log:         baseLog.With("service", "AttachmentService"),
		sessions:    sessions,
		attachments: attachments,
		store:       store,
		ttl:         ttl,
	}
}

func (s *attachmentService) AddAttachment(ctx context.Context, actorID, sessionID uuid.UUID, req AttachmentRequest) (*types.NegotiationAttachment, error) {
	const op = "Attachments.Add"
	storagePath := strings.TrimSpace(req.StoragePath)
	if storagePath == "" || strings.Contains(storagePath, "..") {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "storage_path is required and must not traverse", nil)
	}
	if req.SizeBytes < 0 {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "size_bytes must be >= 0", nil)
	}
	if _, err := s.requireParty(ctx, op, actorID, sessionID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = path.Base(storagePath)
	}
	row := &types.NegotiationAttachment{
		ID:          uuid.New(),
		SessionID:   sessionID,
		UploadedBy:  actorID,
		StoragePath: strings.TrimPrefix(storagePath, "/"),
		FileName:    name,
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	}
	if _, err := s.attachments.Create(dbctx.Context{Ctx: ctx}, []*types.NegotiationAttachment{row}); err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return row, nil
}

func (s *attachmentService) ListAttachments(ctx context.Context, actorID, sessionID uuid.UUID) ([]AttachmentView, error) {
	const op = "Attachments.List"
	if _, err := s.requireParty(ctx, op, actorID, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.attachments.ListBySession(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	out := make([]AttachmentView, 0, len(rows))
	for _, row := range rows {
		view := AttachmentView{NegotiationAttachment: row}
		if s.store != nil {
			url, exp, err := s.store.SignedReadURL(ctx, row.StoragePath, s.ttl)
			if err != nil {
				// The row is still listed; the client can retry for a URL.
				s.log.Warn("sign attachment url failed", "attachment_id", row.ID, "error", err)
			} else {
				view.URL = url
				view.ExpiresAt = exp
			}
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *attachmentService) requireParty(ctx context.Context, op string, actorID, sessionID uuid.UUID) (*types.NegotiationSession, error) {
	session, err := s.sessions.GetByID(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if session == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", sessionID)
	}
	if actorID == uuid.Nil || (actorID != session.InitiatorID && actorID != session.ConsultantAdvisorID) {
		return nil, domainagg.NewError(domainagg.CodeForbidden, op, "caller is not a party to this negotiation", nil)
	}
	return session, nil
}
