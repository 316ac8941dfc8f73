package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
)

// DeduplicateExternalSpots removes duplicate externally sourced spot rows,
// keeping only the most recently updated record per external_id. Needed
// once on databases populated before the unique index existed; the upsert
// path cannot create new duplicates.
func (c *Cleaner) DeduplicateExternalSpots(ctx context.Context) error {
	log := logger.GetLogger("maintenance.dedupe")
	startTime := time.Now()

	log.Info("Starting external spot dedupe")

	countQuery := `
		SELECT COUNT(*) as dup_groups
		FROM (
			SELECT external_id
			FROM parking_spots
			WHERE external_id IS NOT NULL
			GROUP BY external_id
			HAVING COUNT(*) > 1
		) as duplicates
	`

	var dupGroups int
	if err := c.pool.QueryRow(ctx, countQuery).Scan(&dupGroups); err != nil {
		return fmt.Errorf("failed to count duplicate groups: %w", err)
	}

	if dupGroups == 0 {
		log.Info("No duplicate external spots found")
		return nil
	}

	log.Infof("Found %d duplicate groups", dupGroups)

	// Keep the freshest record per external_id, drop the rest.
	deleteQuery := `
		WITH ranked AS (
			SELECT id,
				   ROW_NUMBER() OVER (
					   PARTITION BY external_id
					   ORDER BY updated_at DESC NULLS LAST, id DESC
				   ) as rn
			FROM parking_spots
			WHERE external_id IS NOT NULL
		),
		to_delete AS (
			SELECT id FROM ranked WHERE rn > 1
		)
		DELETE FROM parking_spots
		WHERE id IN (SELECT id FROM to_delete)
	`

	result, err := c.pool.Exec(ctx, deleteQuery)
	if err != nil {
		return fmt.Errorf("failed to delete duplicate spots: %w", err)
	}

	rowsAffected := result.RowsAffected()
	log.Infof("Deleted %d duplicate spot records", rowsAffected)

	var remainingDups int
	if err := c.pool.QueryRow(ctx, countQuery).Scan(&remainingDups); err != nil {
		log.Warnf("Verification query failed: %v", err)
	} else if remainingDups > 0 {
		log.Warnf("%d duplicate groups remain", remainingDups)
	}

	log.Infof("External spot dedupe finished in %v", time.Since(startTime))
	return nil
}

// EnsureExternalIDConstraint adds the unique index the upsert path relies
// on. Refuses to run while duplicates exist.
func (c *Cleaner) EnsureExternalIDConstraint(ctx context.Context) error {
	log := logger.GetLogger("maintenance.dedupe")

	checkQuery := `
		SELECT COUNT(*)
		FROM pg_constraint
		WHERE conname = 'parking_spots_external_id_key'
	`

	var exists int
	if err := c.pool.QueryRow(ctx, checkQuery).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check constraint: %w", err)
	}

	if exists > 0 {
		log.Info("Unique constraint already present")
		return nil
	}

	dupCheckQuery := `
		SELECT COUNT(*)
		FROM (
			SELECT external_id
			FROM parking_spots
			WHERE external_id IS NOT NULL
			GROUP BY external_id
			HAVING COUNT(*) > 1
		) as duplicates
	`

	var dupCount int
	if err := c.pool.QueryRow(ctx, dupCheckQuery).Scan(&dupCount); err != nil {
		return fmt.Errorf("failed to check duplicates: %w", err)
	}

	if dupCount > 0 {
		return fmt.Errorf("%d duplicate groups exist, run dedupe first", dupCount)
	}

	alterQuery := `
		ALTER TABLE parking_spots
		ADD CONSTRAINT parking_spots_external_id_key
		UNIQUE (external_id)
	`

	if _, err := c.pool.Exec(ctx, alterQuery); err != nil {
		return fmt.Errorf("failed to add unique constraint: %w", err)
	}

	log.Info("Unique constraint added")
	return nil
}

// PruneStaleExternalSpots archives externally sourced spots not refreshed
// within maxAge. Records are deactivated rather than deleted so a later
// ingest can revive them.
func (c *Cleaner) PruneStaleExternalSpots(ctx context.Context, maxAge time.Duration) error {
	log := logger.GetLogger("maintenance.prune")

	query := `
		UPDATE parking_spots
		SET is_active = FALSE, updated_at = NOW()
		WHERE source = 'external'
		  AND is_active = TRUE
		  AND updated_at < NOW() - $1::interval
	`

	interval := fmt.Sprintf("%d seconds", int(maxAge.Seconds()))
	result, err := c.pool.Exec(ctx, query, interval)
	if err != nil {
		return fmt.Errorf("failed to prune stale spots: %w", err)
	}

	log.Infof("Deactivated %d stale external spots (older than %v)", result.RowsAffected(), maxAge)
	return nil
}
