package db

import (
	"time"
)

// MasterProduct maps catalog.master_products.
type MasterProduct struct {
	MasterProductID    int64      `gorm:"column:master_product_id;primaryKey;autoIncrement"`
	MasterProductUUID  string     `gorm:"column:master_product_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SKU                string     `gorm:"column:sku;type:char(64);not null"`
	CanonicalName      string     `gorm:"column:canonical_name;type:text;not null"`
	BaseName           string     `gorm:"column:base_name;type:text;not null"`
	Brand              *string    `gorm:"column:brand;type:text"`
	PackageType        *string    `gorm:"column:package_type;type:text"`
	QuantityValue      float64    `gorm:"column:quantity_value;type:double precision;not null;default:1"`
	QuantityUnit       string     `gorm:"column:quantity_unit;type:text;not null;default:un"`
	QuantityBase       float64    `gorm:"column:quantity_base;type:double precision;not null;default:1"`
	QuantityBaseUnit   string     `gorm:"column:quantity_base_unit;type:text;not null;default:un"`
	IsBulk             bool       `gorm:"column:is_bulk;type:boolean;not null;default:false"`
	Category           string     `gorm:"column:category;type:text;not null;default:other"`
	Status             string     `gorm:"column:status;type:text;not null;default:active"`
	ConsolidatedIntoID *int64     `gorm:"column:consolidated_into_id;type:bigint"`
	NotesCount         int        `gorm:"column:notes_count;type:integer;not null;default:0"`
	UserCount          int        `gorm:"column:user_count;type:integer;not null;default:0"`
	DeletedAt          *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt          time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (MasterProduct) TableName() string { return "catalog.master_products" }

// Synonym maps catalog.synonyms.
type Synonym struct {
	SynonymID       int64     `gorm:"column:synonym_id;primaryKey;autoIncrement"`
	SynonymUUID     string    `gorm:"column:synonym_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	MasterProductID int64     `gorm:"column:master_product_id;type:bigint;not null;uniqueIndex:ux_synonyms_master_variant,priority:1"`
	VariantText     string    `gorm:"column:variant_text;type:text;not null;uniqueIndex:ux_synonyms_master_variant,priority:2"`
	Confidence      float64   `gorm:"column:confidence;type:double precision;not null;default:1"`
	OccurrenceCount int       `gorm:"column:occurrence_count;type:integer;not null;default:1"`
	FirstSeenAt     time.Time `gorm:"column:first_seen_at;type:timestamptz;not null;default:now()"`
	LastSeenAt      time.Time `gorm:"column:last_seen_at;type:timestamptz;not null;default:now()"`
}

func (Synonym) TableName() string { return "catalog.synonyms" }

// Candidate maps catalog.candidates.
type Candidate struct {
	CandidateID     int64      `gorm:"column:candidate_id;primaryKey;autoIncrement"`
	CandidateUUID   string     `gorm:"column:candidate_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	MasterProductID int64      `gorm:"column:master_product_id;type:bigint;not null"`
	RawDescription  string     `gorm:"column:raw_description;type:text;not null"`
	VariantText     string     `gorm:"column:variant_text;type:text;not null"`
	OracleResponse  *string    `gorm:"column:oracle_response;type:jsonb"`
	Confidence      float64    `gorm:"column:confidence;type:double precision;not null;default:0"`
	Language        string     `gorm:"column:language;type:text;not null;default:''"`
	Status          string     `gorm:"column:status;type:text;not null;default:pending"`
	DecidedBy       *string    `gorm:"column:decided_by;type:text"`
	DecidedAt       *time.Time `gorm:"column:decided_at;type:timestamptz"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Candidate) TableName() string { return "catalog.candidates" }

// StockItem maps catalog.stock_items.
type StockItem struct {
	StockItemID     int64      `gorm:"column:stock_item_id;primaryKey;autoIncrement"`
	StockItemUUID   string     `gorm:"column:stock_item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID          int64      `gorm:"column:user_id;type:bigint;not null"`
	RawDescription  string     `gorm:"column:raw_description;type:text;not null"`
	SKU             *string    `gorm:"column:sku;type:char(64)"`
	MasterProductID *int64     `gorm:"column:master_product_id;type:bigint"`
	CanonicalName   *string    `gorm:"column:canonical_name;type:text"`
	BaseName        *string    `gorm:"column:base_name;type:text"`
	Brand           *string    `gorm:"column:brand;type:text"`
	Category        *string    `gorm:"column:category;type:text"`
	Quantity        float64    `gorm:"column:quantity;type:double precision;not null;default:1"`
	Unit            string     `gorm:"column:unit;type:text;not null;default:un"`
	PurchasedAt     *time.Time `gorm:"column:purchased_at;type:timestamptz"`
	DeletedAt       *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StockItem) TableName() string { return "catalog.stock_items" }

// NormalizationRun maps catalog.normalization_runs.
type NormalizationRun struct {
	RunID          int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID        string     `gorm:"column:run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Kind           string     `gorm:"column:kind;type:text;not null"`
	StartedAt      time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt     *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status         string     `gorm:"column:status;type:text;not null;default:running"`
	ItemsScanned   int        `gorm:"column:items_scanned;type:integer;not null;default:0"`
	ItemsResolved  int        `gorm:"column:items_resolved;type:integer;not null;default:0"`
	ItemsDeferred  int        `gorm:"column:items_deferred;type:integer;not null;default:0"`
	ItemsFailed    int        `gorm:"column:items_failed;type:integer;not null;default:0"`
	LastStockItem  *int64     `gorm:"column:last_stock_item;type:bigint"`
	ErrorMessage   *string    `gorm:"column:error_message;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (NormalizationRun) TableName() string { return "catalog.normalization_runs" }

func autoMigrateModels() []any {
	return []any{
		&MasterProduct{},
		&Synonym{},
		&Candidate{},
		&StockItem{},
		&NormalizationRun{},
	}
}
