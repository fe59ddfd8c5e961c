package upload

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/printforge/preflight/internal/model"
)

var (
	ErrShopNotFound   = errors.New("shop not found")
	ErrUploadNotFound = errors.New("upload not found")
	ErrItemNotFound   = errors.New("upload item not found")
)

type Repository struct {
	db *dbpg.DB
}

func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetShop(ctx context.Context, id uuid.UUID) (model.Shop, error) {
	query := `
		SELECT plan, storage_provider, auto_approve
		FROM shops
		WHERE id = $1
    `

	var shop model.Shop
	shop.ID = id
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(&shop.Plan, &shop.StorageProvider, &shop.AutoApprove)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Shop{}, ErrShopNotFound
		}

		return model.Shop{}, fmt.Errorf("get shop: %w", err)
	}

	return shop, nil
}

func (r *Repository) GetUpload(ctx context.Context, id uuid.UUID) (model.Upload, error) {
	query := `
		SELECT shop_id, status, preflight_summary, created_at
		FROM uploads
		WHERE id = $1
    `

	var up model.Upload
	up.ID = id
	var summary []byte
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(&up.ShopID, &up.Status, &summary, &up.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Upload{}, ErrUploadNotFound
		}

		return model.Upload{}, fmt.Errorf("get upload: %w", err)
	}

	if len(summary) > 0 {
		up.Summary = &model.PreflightSummary{}
		if err := json.Unmarshal(summary, up.Summary); err != nil {
			return model.Upload{}, fmt.Errorf("get upload: decode summary: %w", err)
		}
	}

	return up, nil
}

func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (model.UploadItem, error) {
	query := `
		SELECT upload_id, storage_key, preview_key, thumbnail_key, preflight_status, preflight_result, progress, created_at
		FROM upload_items
		WHERE id = $1
    `

	var item model.UploadItem
	item.ID = id
	var result []byte
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&item.UploadID, &item.StorageKey, &item.PreviewKey, &item.ThumbnailKey,
		&item.PreflightStatus, &result, &item.Progress, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UploadItem{}, ErrItemNotFound
		}

		return model.UploadItem{}, fmt.Errorf("get item: %w", err)
	}

	if len(result) > 0 {
		item.Result = &model.PreflightResult{}
		if err := json.Unmarshal(result, item.Result); err != nil {
			return model.UploadItem{}, fmt.Errorf("get item: decode result: %w", err)
		}
	}

	return item, nil
}

func (r *Repository) CreateUpload(ctx context.Context, shopID uuid.UUID) (uuid.UUID, error) {
	query := `
		INSERT INTO uploads (shop_id, status)
		VALUES ($1, $2)
		RETURNING id
    `

	var id uuid.UUID
	err := r.db.Master.QueryRowContext(ctx, query, shopID, model.UploadProcessing).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create upload: %w", err)
	}

	return id, nil
}

func (r *Repository) CreateItem(ctx context.Context, uploadID uuid.UUID, storageKey string) (uuid.UUID, error) {
	query := `
		INSERT INTO upload_items (upload_id, storage_key, preview_key, preflight_status)
		VALUES ($1, $2, $2, $3)
		RETURNING id
    `

	var id uuid.UUID
	err := r.db.Master.QueryRowContext(ctx, query, uploadID, storageKey, model.ItemPending).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create item: %w", err)
	}

	return id, nil
}

// SetItemProgress advances the item's progress percentage. Progress is
// monotonic; a stale write from a retried job cannot move it backwards.
func (r *Repository) SetItemProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE upload_items
		SET progress = $2
		WHERE id = $1 AND progress < $2
    `

	if _, err := r.db.ExecContext(ctx, query, id, progress); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}

	return nil
}

// SetItemThumbnail records the thumbnail key for an item. Missing
// thumbnails are tolerated, so this is best effort from the caller's
// point of view.
func (r *Repository) SetItemThumbnail(ctx context.Context, id uuid.UUID, key string) error {
	query := `
		UPDATE upload_items
		SET thumbnail_key = $2
		WHERE id = $1
    `

	if _, err := r.db.ExecContext(ctx, query, id, key); err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}

	return nil
}

// FinishItem writes the terminal status and the full check result for
// an item. The guard on preflight_status makes the write happen at most
// once: a redelivered job hits zero rows and the first result stands.
func (r *Repository) FinishItem(ctx context.Context, id uuid.UUID, status model.ItemStatus, result model.PreflightResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("finish item: encode result: %w", err)
	}

	query := `
		UPDATE upload_items
		SET preflight_status = $2, preflight_result = $3, progress = 100
		WHERE id = $1 AND preflight_status = $4
    `

	rows, err := r.db.ExecContext(ctx, query, id, status, payload, model.ItemPending)
	if err != nil {
		return fmt.Errorf("finish item: %w", err)
	}

	n, err := rows.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish item: rows affected: %w", err)
	}
	if n == 0 {
		// Already finished by an earlier delivery; not an error.
		return nil
	}

	return nil
}

// RecomputeUpload derives the order-level status from the item statuses.
// It runs in a transaction with the sibling rows locked so two workers
// finishing the last two items cannot both see a pending sibling. While
// any sibling is still pending nothing is written.
func (r *Repository) RecomputeUpload(ctx context.Context, uploadID uuid.UUID) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recompute: begin: %w", err)
	}
	defer tx.Rollback()

	var autoApprove bool
	err = tx.QueryRowContext(ctx, `
		SELECT s.auto_approve
		FROM uploads u
		JOIN shops s ON s.id = u.shop_id
		WHERE u.id = $1
		FOR UPDATE OF u
    `, uploadID).Scan(&autoApprove)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUploadNotFound
		}

		return fmt.Errorf("recompute: lock upload: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT preflight_status
		FROM upload_items
		WHERE upload_id = $1
    `, uploadID)
	if err != nil {
		return fmt.Errorf("recompute: list items: %w", err)
	}
	defer rows.Close()

	var statuses []model.ItemStatus
	for rows.Next() {
		var s model.ItemStatus
		if err := rows.Scan(&s); err != nil {
			return fmt.Errorf("recompute: scan item: %w", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("recompute: iterate items: %w", err)
	}

	status, overall, changed := model.Aggregate(statuses, autoApprove)
	if !changed {
		return nil
	}

	summary, err := json.Marshal(model.PreflightSummary{
		Overall:      overall,
		CompletedAt:  time.Now().UTC(),
		ItemCount:    len(statuses),
		AutoApproved: status == model.UploadReady,
	})
	if err != nil {
		return fmt.Errorf("recompute: encode summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE uploads
		SET status = $2, preflight_summary = $3
		WHERE id = $1
    `, uploadID, status, summary); err != nil {
		return fmt.Errorf("recompute: update upload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recompute: commit: %w", err)
	}

	return nil
}
