// Package review applies approve/reject decisions to document requirements.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/audit"
	"docportal/internal/model"
	"docportal/internal/repository"
	"docportal/pkg/logger"
	"docportal/pkg/metrics"
	"docportal/pkg/otel"

	"go.uber.org/zap"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) event() (model.RequirementEvent, bool) {
	switch a {
	case ActionApprove:
		return model.EventApprove, true
	case ActionReject:
		return model.EventReject, true
	}
	return "", false
}

type Result struct {
	RequirementID string                  `json:"requirement_id"`
	Previous      model.RequirementStatus `json:"previous_status"`
	Status        model.RequirementStatus `json:"status"`
	// AnnotatedFile 写入备注的文件；没有写备注时为 nil
	AnnotatedFile *model.FileVersion `json:"annotated_file,omitempty"`
}

type Service struct {
	requirements repository.RequirementRepository
	evaluator    *access.Evaluator
	sink         audit.Sink
	logger       *zap.Logger
}

func NewService(requirements repository.RequirementRepository, evaluator *access.Evaluator, sink audit.Sink, logger *zap.Logger) *Service {
	return &Service{
		requirements: requirements,
		evaluator:    evaluator,
		sink:         sink,
		logger:       logger,
	}
}

// DecideAsCaller 先在需求所属项目上做访问判定，再执行 Decide
func (s *Service) DecideAsCaller(ctx context.Context, callerID, requirementID string, action Action, note string) (*Result, error) {
	req, err := s.requirements.GetByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("load requirement", err)
	}
	grant, err := s.evaluator.Evaluate(ctx, req.ProjectID, callerID)
	if err != nil {
		return nil, err
	}
	return s.Decide(ctx, grant, requirementID, action, note)
}

// Decide 审核决定。备注写在最新创建的文件上（created_at desc, id desc），
// 其余文件不变。approve 已批准的需求是 no-op；reject 已驳回的需求会覆盖同一文件的备注。
func (s *Service) Decide(ctx context.Context, grant access.Grant, requirementID string, action Action, note string) (*Result, error) {
	ctx, span := otel.StartSpan(ctx, "review.Decide")
	defer span.End()

	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("requirement_id", requirementID),
		zap.String("project_id", grant.ProjectID()),
		zap.String("caller_id", grant.CallerID()),
		zap.String("action", string(action)),
	)

	if !grant.CanReview() {
		return nil, fmt.Errorf("review: %w", apperr.ErrForbidden)
	}
	event, ok := action.event()
	if !ok {
		return nil, apperr.Validation("action must be approve or reject")
	}

	req, err := s.requirements.GetByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("load requirement", err)
	}
	// 防止跨项目猜测 id
	if req.ProjectID != grant.ProjectID() {
		return nil, apperr.NotFound("requirement", requirementID)
	}

	note = strings.TrimSpace(note)
	if action == ActionReject && note == "" {
		return nil, apperr.Validation("a reason is required to reject a document; please provide a note")
	}

	// 快速失败；最终以行锁内的状态为准
	if _, err := req.Status.Next(event); err != nil {
		return nil, apperr.Validation("cannot %s a requirement in status %s", action, req.Status)
	}

	var notePtr *string
	if note != "" {
		notePtr = &note
	}

	tr, annotated, err := s.requirements.ApplyDecision(ctx, requirementID, event, notePtr)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return nil, err
		case errors.Is(err, model.ErrInvalidTransition):
			log.Warn("Review decision lost race with a status change", zap.String("status", string(tr.From)))
			return nil, apperr.Validation("cannot %s a requirement in status %s", action, tr.From)
		}
		log.Error("Failed to apply review decision", zap.Error(err))
		return nil, apperr.Internal("apply decision", err)
	}

	if tr.From == model.StatusApproved {
		log.Info("Requirement already approved")
		return &Result{RequirementID: requirementID, Previous: tr.From, Status: tr.To}, nil
	}

	after := map[string]any{"action": action, "status": tr.To}
	if notePtr != nil {
		after["note"] = note
	}
	s.sink.Record(ctx, audit.Entry{
		ActorID:    grant.CallerID(),
		Action:     audit.ActionUpdate,
		EntityType: "document_requirement",
		EntityID:   requirementID,
		Before:     map[string]any{"status": tr.From},
		After:      after,
	})

	metrics.IncrementReviewDecision(string(action))
	log.Info("Review decision applied",
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
	)

	return &Result{
		RequirementID: requirementID,
		Previous:      tr.From,
		Status:        tr.To,
		AnnotatedFile: annotated,
	}, nil
}
