package par

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// requestRow is the relational shape of a Request. The parameter set is
// an opaque JSON blob, matching the store-verbatim contract.
type requestRow struct {
	ID         string `gorm:"primaryKey;size:27"`
	RequestURI string `gorm:"column:request_uri;uniqueIndex;size:128;not null"`
	ClientID   string `gorm:"column:client_id;index;size:255;not null"`
	Parameters []byte `gorm:"not null"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

func (requestRow) TableName() string { return "pushed_authorization_requests" }

// GormStore persists records in a relational database. Consume is a
// single DELETE ... RETURNING statement, so the read and the delete
// cannot be interleaved by a concurrent consumer.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&requestRow{}); err != nil {
		return nil, fmt.Errorf("migrate par schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, req *Request) error {
	row, err := toRow(req)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *GormStore) Peek(ctx context.Context, requestURI, clientID string) (*Request, error) {
	var row requestRow
	err := s.db.WithContext(ctx).
		Where("request_uri = ? AND client_id = ?", requestURI, clientID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	req, err := fromRow(&row)
	if err != nil {
		return nil, err
	}
	if req.Expired(time.Now()) {
		// lazy cleanup; losing this delete to a concurrent consume is fine
		if err := s.db.WithContext(ctx).Where("request_uri = ?", requestURI).Delete(&requestRow{}).Error; err != nil {
			slog.Warn("failed to delete expired request", "error", err, "request_uri", requestURI)
		}
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *GormStore) Consume(ctx context.Context, requestURI, clientID string) (*Request, error) {
	var rows []requestRow
	res := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("request_uri = ? AND client_id = ?", requestURI, clientID).
		Delete(&rows)
	if res.Error != nil {
		return nil, fmt.Errorf("consume request: %w", res.Error)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	req, err := fromRow(&rows[0])
	if err != nil {
		return nil, err
	}
	// the row is gone either way; an expired one is reported as absent
	if req.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return req, nil
}

func toRow(req *Request) (*requestRow, error) {
	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	return &requestRow{
		ID:         req.ID,
		RequestURI: req.RequestURI,
		ClientID:   req.ClientID,
		Parameters: params,
		CreatedAt:  req.CreatedAt,
		ExpiresAt:  req.ExpiresAt,
	}, nil
}

func fromRow(row *requestRow) (*Request, error) {
	req := &Request{
		ID:         row.ID,
		RequestURI: row.RequestURI,
		ClientID:   row.ClientID,
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
	}
	if err := json.Unmarshal(row.Parameters, &req.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return req, nil
}
