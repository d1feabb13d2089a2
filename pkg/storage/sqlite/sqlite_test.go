package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/storage"
	"github.com/papercomputeco/glassbox/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/glassbox/pkg/utils/test"
)

var _ = Describe("SQLiteDriver", func() {
	testutils.AuditStoreBehaviour(func() storage.Driver {
		d, err := sqlite.NewSQLiteDriver(context.Background(), ":memory:", zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("append-only enforcement", func() {
		var (
			ctx    context.Context
			driver *sqlite.SQLiteDriver
		)

		BeforeEach(func() {
			ctx = context.Background()
			var err error
			driver, err = sqlite.NewSQLiteDriver(ctx, ":memory:", zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
			for _, r := range testutils.NewTestRecords(2) {
				Expect(driver.Append(ctx, r)).To(Succeed())
			}
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("refuses updates", func() {
			_, err := driver.DB.ExecContext(ctx, `UPDATE audit_records SET prompt = 'edited' WHERE sequence = 0`)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("append-only"))
		})

		It("refuses deletes", func() {
			_, err := driver.DB.ExecContext(ctx, `DELETE FROM audit_records`)
			Expect(err).To(HaveOccurred())
		})
	})

	It("keeps records across reopen", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "audit.db")

		d, err := sqlite.NewSQLiteDriver(ctx, path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(d.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
		Expect(d.Append(ctx, testutils.NewTestRecords(1)[0])).To(Succeed())
		Expect(d.Close()).To(Succeed())

		d, err = sqlite.NewSQLiteDriver(ctx, path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()
		n, err := d.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(1)))
	})

	It("surfaces rows edited behind its back to the audit log", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "audit.db")

		d, err := sqlite.NewSQLiteDriver(ctx, path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		log, err := audit.Open(ctx, d)
		Expect(err).NotTo(HaveOccurred())
		_, err = log.Append(ctx, "2+2=", "4")
		Expect(err).NotTo(HaveOccurred())
		_, err = log.Append(ctx, "3+3=", "6")
		Expect(err).NotTo(HaveOccurred())

		raw, err := sql.Open("sqlite3", path)
		Expect(err).NotTo(HaveOccurred())
		_, err = raw.Exec(`DROP TRIGGER audit_records_no_update`)
		Expect(err).NotTo(HaveOccurred())
		_, err = raw.Exec(`UPDATE audit_records SET response = '5' WHERE sequence = 0`)
		Expect(err).NotTo(HaveOccurred())
		Expect(raw.Close()).To(Succeed())

		err = log.Verify(ctx, 0, 2)
		Expect(err).To(MatchError(audit.ErrCorruption))
		Expect(err.(*audit.CorruptionError).Sequence).To(Equal(uint64(0)))
		Expect(d.Close()).To(Succeed())
	})
})
