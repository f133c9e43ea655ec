package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cnics/mireview/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) MirrorStore {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *patientRepoPG) FindByKey(ctx context.Context, sitePatientID, site string) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, site_patient_id, site, created_at
		FROM patients WHERE site_patient_id = $1 AND site = $2`,
		sitePatientID, site).Scan(&p.ID, &p.SitePatientID, &p.Site, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (site_patient_id, site)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		p.SitePatientID, p.Site).Scan(&p.ID, &p.CreatedAt)
}

func (r *patientRepoPG) Upsert(ctx context.Context, p *Patient) error {
	return db.NewTransactor(r.pool).WithTx(ctx, func(ctx context.Context) error {
		c := r.conn(ctx)
		if _, err := c.Exec(ctx, `SET CONSTRAINTS patients_site_key DEFERRED`); err != nil {
			return err
		}

		var id int64
		err := c.QueryRow(ctx, `
			INSERT INTO patients (id, site_patient_id, site)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET site = EXCLUDED.site
			WHERE patients.site_patient_id = EXCLUDED.site_patient_id AND patients.site = EXCLUDED.site
			RETURNING id`,
			p.ID, p.SitePatientID, p.Site).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("upsert patient %d (%s/%s): %w", p.ID, p.Site, p.SitePatientID, ErrIDConflict)
		}
		if err != nil {
			return err
		}

		if _, err := c.Exec(ctx, `
			UPDATE events SET patient_id = $1
			WHERE patient_id IN (
				SELECT id FROM patients WHERE site_patient_id = $2 AND site = $3 AND id <> $1)`,
			p.ID, p.SitePatientID, p.Site); err != nil {
			return err
		}
		if _, err := c.Exec(ctx, `
			DELETE FROM patients WHERE site_patient_id = $2 AND site = $3 AND id <> $1`,
			p.ID, p.SitePatientID, p.Site); err != nil {
			return err
		}

		// Keep locally created ids above the registry's.
		_, err = c.Exec(ctx, `
			SELECT setval(pg_get_serial_sequence('patients', 'id'), GREATEST($1, (SELECT MAX(id) FROM patients)))`,
			p.ID)
		return err
	})
}
