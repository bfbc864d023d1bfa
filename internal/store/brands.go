package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReplaceBrands atomically swaps the brand inventory with the provided slice.
func (d *Database) ReplaceBrands(brands []Brand) error {
	if d == nil {
		return errors.New("database is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Brand{}).Error; err != nil {
			return err
		}
		if len(brands) == 0 {
			return nil
		}
		// Batch insert to avoid SQLite variable limit (999)
		const batchSize = 250
		for start := 0; start < len(brands); start += batchSize {
			end := start + batchSize
			if end > len(brands) {
				end = len(brands)
			}
			batch := brands[start:end]
			if err := tx.CreateInBatches(batch, batchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CountBrands returns the number of stored brand entries.
func (d *Database) CountBrands() (int64, error) {
	var count int64
	if err := d.gorm.Model(&Brand{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindBrandCandidates returns candidate brand rows filtered by optional prefixes and length bounds.
func (d *Database) FindBrandCandidates(prefixes []string, minLen, maxLen, targetLen, limit int) ([]Brand, error) {
	query := d.gorm.Model(&Brand{})
	if minLen > 0 {
		query = query.Where("length >= ?", minLen)
	}
	if maxLen > 0 {
		query = query.Where("length <= ?", maxLen)
	}
	if len(prefixes) > 0 {
		query = query.Where("prefix IN ?", prefixes)
	}
	if targetLen > 0 {
		query = query.Order(clause.Expr{SQL: "ABS(length - ?)", Vars: []any{targetLen}})
	}
	query = query.Order("items DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []Brand
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PopularBrands returns the brands seen on the most feed items.
func (d *Database) PopularBrands(limit int, minItems int) ([]Brand, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	if limit <= 0 {
		limit = 500
	}
	if minItems <= 0 {
		minItems = 1
	}
	var rows []Brand
	query := d.gorm.Model(&Brand{}).
		Where("items >= ?", minItems).
		Order("items DESC, name ASC").
		Limit(limit)
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("popular brands: %w", err)
	}
	return rows, nil
}

// ReplaceTitleTerms atomically swaps the title_terms table with the provided slice.
func (d *Database) ReplaceTitleTerms(terms []TitleTerm) error {
	if d == nil {
		return errors.New("database is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TitleTerm{}).Error; err != nil {
			return err
		}
		if len(terms) == 0 {
			return nil
		}
		const batchSize = 250
		for start := 0; start < len(terms); start += batchSize {
			end := start + batchSize
			if end > len(terms) {
				end = len(terms)
			}
			batch := terms[start:end]
			if err := tx.CreateInBatches(batch, batchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListTitleTerms returns title term rows ordered by frequency.
func (d *Database) ListTitleTerms(limit int) ([]TitleTerm, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	query := d.gorm.Model(&TitleTerm{}).Order("total DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []TitleTerm
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
