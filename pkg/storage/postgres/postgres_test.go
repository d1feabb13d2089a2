package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/storage"
	"github.com/papercomputeco/glassbox/pkg/storage/postgres"
	testutils "github.com/papercomputeco/glassbox/pkg/utils/test"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("GLASSBOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("GLASSBOX_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

// reset empties the tables. The append-only trigger is dropped for the
// truncate and recreated by the next NewDriver.
func reset(ctx context.Context, d *postgres.Driver) {
	_, err := d.DB.ExecContext(ctx, `DROP TRIGGER IF EXISTS audit_records_append_only ON audit_records`)
	Expect(err).NotTo(HaveOccurred())
	_, err = d.DB.ExecContext(ctx, `TRUNCATE audit_records, audit_header`)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Driver", func() {
	newDriver := func() *postgres.Driver {
		ctx := context.Background()
		d, err := postgres.NewDriver(ctx, connStr(), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		reset(ctx, d)
		Expect(d.Close()).To(Succeed())

		// Reopen so the trigger exists again.
		d, err = postgres.NewDriver(ctx, connStr(), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	testutils.AuditStoreBehaviour(func() storage.Driver {
		return newDriver()
	})

	It("refuses updates to committed records", func() {
		ctx := context.Background()
		d := newDriver()
		defer d.Close()

		Expect(d.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
		Expect(d.Append(ctx, testutils.NewTestRecords(1)[0])).To(Succeed())
		_, err := d.DB.ExecContext(ctx, `UPDATE audit_records SET prompt = 'edited'`)
		Expect(err).To(HaveOccurred())
	})
})
