package recorder

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// RunPO is the persistence model for the queryable run index. The raw bodies
// stay in the vault; only scalar fields land in Postgres.
type RunPO struct {
	ID               uint      `gorm:"primaryKey"`
	RunID            string    `gorm:"uniqueIndex;size:64"`
	TraceID          string    `gorm:"size:64"`
	Timestamp        time.Time `gorm:"index"`
	Model            string    `gorm:"index;size:128"`
	Provider         string    `gorm:"size:64"`
	Endpoint         string    `gorm:"size:128"`
	RequestVaultRef  string    `gorm:"size:256"`
	ResponseVaultRef string    `gorm:"size:256"`
	RequestChecksum  string    `gorm:"size:80"`
	ResponseChecksum string    `gorm:"size:80"`
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	DurationMS       int64
	Status           string `gorm:"index;size:16"`
	Error            string
	CreatedAt        time.Time
}

func (RunPO) TableName() string {
	return "air_runs"
}

// Index stores run metadata in a relational database for the admin API.
type Index struct {
	db *gorm.DB
}

// NewIndex creates a run index backed by db.
func NewIndex(db *gorm.DB) *Index {
	return &Index{db: db}
}

// Migrate creates the air_runs table.
func (i *Index) Migrate() error {
	return i.db.AutoMigrate(&RunPO{})
}

// Save inserts an index row for the given record. Run IDs are freshly
// generated UUIDs, so the unique index never sees a duplicate.
func (i *Index) Save(ctx context.Context, r Record) error {
	po := RunPO{
		RunID:            r.RunID,
		TraceID:          r.TraceID,
		Timestamp:        r.Timestamp,
		Model:            r.Model,
		Provider:         r.Provider,
		Endpoint:         r.Endpoint,
		RequestVaultRef:  r.RequestVaultRef,
		ResponseVaultRef: r.ResponseVaultRef,
		RequestChecksum:  r.RequestChecksum,
		ResponseChecksum: r.ResponseChecksum,
		PromptTokens:     r.Tokens.Prompt,
		CompletionTokens: r.Tokens.Completion,
		TotalTokens:      r.Tokens.Total,
		DurationMS:       r.DurationMS,
		Status:           r.Status,
		Error:            r.Error,
	}
	return i.db.WithContext(ctx).Create(&po).Error
}

// Get returns the record for a run ID.
func (i *Index) Get(ctx context.Context, runID string) (*Record, error) {
	var po RunPO
	if err := i.db.WithContext(ctx).Where("run_id = ?", runID).First(&po).Error; err != nil {
		return nil, err
	}
	r := po.toRecord()
	return &r, nil
}

// ListOptions filters List results.
type ListOptions struct {
	Model  string
	Status string
	Limit  int
	Offset int
}

// List returns records matching opts, newest first.
func (i *Index) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	q := i.db.WithContext(ctx).Model(&RunPO{}).Order("timestamp DESC")
	if opts.Model != "" {
		q = q.Where("model = ?", opts.Model)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}
	q = q.Limit(opts.Limit).Offset(opts.Offset)

	var pos []RunPO
	if err := q.Find(&pos).Error; err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(pos))
	for _, po := range pos {
		records = append(records, po.toRecord())
	}
	return records, nil
}

func (po RunPO) toRecord() Record {
	return Record{
		Version:          Version,
		RunID:            po.RunID,
		TraceID:          po.TraceID,
		Timestamp:        po.Timestamp,
		Model:            po.Model,
		Provider:         po.Provider,
		Endpoint:         po.Endpoint,
		RequestVaultRef:  po.RequestVaultRef,
		ResponseVaultRef: po.ResponseVaultRef,
		RequestChecksum:  po.RequestChecksum,
		ResponseChecksum: po.ResponseChecksum,
		Tokens: Tokens{
			Prompt:     po.PromptTokens,
			Completion: po.CompletionTokens,
			Total:      po.TotalTokens,
		},
		DurationMS: po.DurationMS,
		Status:     po.Status,
		Error:      po.Error,
	}
}
