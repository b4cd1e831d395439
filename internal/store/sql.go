package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grantd-io/grantd/internal/models"
)

// SQLStore backs every store interface with a single sqlite database.
type SQLStore struct {
	db *gorm.DB
}

type permissionSetRecord struct {
	Name     string `gorm:"primaryKey;column:name"`
	Document []byte `gorm:"column:document"`
}

func (permissionSetRecord) TableName() string { return "permission_sets" }

type arnRecord struct {
	Name string `gorm:"primaryKey;column:name"`
	Arn  string `gorm:"column:arn"`
}

func (arnRecord) TableName() string { return "permission_set_arns" }

// Open opens (creating if needed) the sqlite database at path and runs
// migrations.
func Open(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	if err := db.AutoMigrate(
		&models.Link{},
		&models.LedgerEntry{},
		&permissionSetRecord{},
		&arnRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Put(ctx context.Context, link models.Link) error {
	return s.db.WithContext(ctx).Save(&link).Error
}

func (s *SQLStore) Delete(ctx context.Context, entityID string) error {
	return s.db.WithContext(ctx).Delete(&models.Link{}, "entity_id = ?", entityID).Error
}

func (s *SQLStore) QueryByPrincipalName(ctx context.Context, principalName string) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).Where("principal_name = ?", principalName).Find(&links).Error
	return links, err
}

func (s *SQLStore) QueryByEntityData(ctx context.Context, entityData string) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).Where("entity_data = ?", entityData).Find(&links).Error
	return links, err
}

func (s *SQLStore) QueryByPermissionSetName(ctx context.Context, permissionSetName string) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).Where("permission_set_name = ?", permissionSetName).Find(&links).Error
	return links, err
}

// PermissionSets returns the permission set definition store view.
func (s *SQLStore) PermissionSets() PermissionSetStore { return &sqlPermissionSets{db: s.db} }

// Arns returns the name-to-ARN mapping store view.
func (s *SQLStore) Arns() ArnStore { return &sqlArns{db: s.db} }

// Ledger returns the provisioned-grant ledger store view.
func (s *SQLStore) Ledger() LedgerStore { return &sqlLedger{db: s.db} }

type sqlPermissionSets struct {
	db *gorm.DB
}

func (s *sqlPermissionSets) Get(ctx context.Context, name string) (*models.PermissionSetDefinition, error) {
	var record permissionSetRecord
	err := s.db.WithContext(ctx).First(&record, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var definition models.PermissionSetDefinition
	if err := json.Unmarshal(record.Document, &definition); err != nil {
		return nil, fmt.Errorf("corrupt permission set record %s: %w", name, err)
	}
	return &definition, nil
}

func (s *sqlPermissionSets) Put(ctx context.Context, definition models.PermissionSetDefinition) error {
	document, err := json.Marshal(definition)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&permissionSetRecord{
		Name:     definition.Name,
		Document: document,
	}).Error
}

func (s *sqlPermissionSets) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&permissionSetRecord{}, "name = ?", name).Error
}

type sqlArns struct {
	db *gorm.DB
}

func (s *sqlArns) Get(ctx context.Context, name string) (string, error) {
	var record arnRecord
	err := s.db.WithContext(ctx).First(&record, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return record.Arn, nil
}

func (s *sqlArns) Put(ctx context.Context, name, arn string) error {
	return s.db.WithContext(ctx).Save(&arnRecord{Name: name, Arn: arn}).Error
}

func (s *sqlArns) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&arnRecord{}, "name = ?", name).Error
}

type sqlLedger struct {
	db *gorm.DB
}

func (s *sqlLedger) Get(ctx context.Context, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.WithContext(ctx).First(&entry, "parent_link = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *sqlLedger) Put(ctx context.Context, entry models.LedgerEntry) error {
	return s.db.WithContext(ctx).Save(&entry).Error
}

func (s *sqlLedger) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&models.LedgerEntry{}, "parent_link = ?", key).Error
}

func (s *sqlLedger) QueryByTagLookup(ctx context.Context, tagKeyLookup string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.WithContext(ctx).Where("tag_key_lookup = ?", tagKeyLookup).Find(&entries).Error
	return entries, err
}
