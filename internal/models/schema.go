package models

// SchemaCapabilities records which parts of the promotion schema are installed.
type SchemaCapabilities struct {
	PromotionColumns bool `db:"promotion_columns" json:"promotion_columns"`
	PromotionTable   bool `db:"promotion_table" json:"promotion_table"`
	AuditTable       bool `db:"audit_table" json:"audit_table"`
}

// FullSchema is the capability set after every migration has run.
var FullSchema = SchemaCapabilities{PromotionColumns: true, PromotionTable: true, AuditTable: true}

// LegacySchema is the capability set of a database that predates the promotion migration.
var LegacySchema = SchemaCapabilities{AuditTable: true}
