package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// OpenRegistry connects to the external MySQL patient registry.
func OpenRegistry(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open patient registry: %w", err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping patient registry: %w", err)
	}
	return conn, nil
}

// registryStore reads and writes the registry's uw_patients table.
type registryStore struct {
	db *sql.DB
}

func NewRegistryStore(db *sql.DB) Store {
	return &registryStore{db: db}
}

func (r *registryStore) FindByKey(ctx context.Context, sitePatientID, site string) (*Patient, error) {
	var p Patient
	var created sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, site_patient_id, site, create_date
		FROM uw_patients WHERE site_patient_id = ? AND site = ?`,
		sitePatientID, site).Scan(&p.ID, &p.SitePatientID, &p.Site, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if created.Valid {
		p.CreatedAt = &created.Time
	}
	return &p, nil
}

func (r *registryStore) Create(ctx context.Context, p *Patient) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO uw_patients (site_patient_id, site, create_date)
		VALUES (?, ?, ?)`, p.SitePatientID, p.Site, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	p.CreatedAt = &now
	return nil
}
