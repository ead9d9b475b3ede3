package migrations

import (
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_invoices",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.InvoiceModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices (status)`,
					`CREATE INDEX IF NOT EXISTS idx_invoices_open ON invoices (created_at) WHERE status IN ('PENDING', 'OVERDUE')`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.InvoiceModel{})
			},
		},
		{
			ID: "000002_create_send_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.SendAttemptModel{}); err != nil {
					return err
				}
				indexes := []string{
					// Serves the (invoiceId, dueDate) dedup lookup.
					`CREATE INDEX IF NOT EXISTS idx_send_attempts_dedup ON send_attempts (invoice_id, due_date, attempted_at) WHERE outcome = 'SENT'`,
					`CREATE INDEX IF NOT EXISTS idx_send_attempts_attempted_at ON send_attempts (attempted_at)`,
					`CREATE INDEX IF NOT EXISTS idx_send_attempts_outcome ON send_attempts (outcome)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SendAttemptModel{})
			},
		},
	})

	return m.Migrate()
}
