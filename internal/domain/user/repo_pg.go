package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cnics/mireview/internal/platform/db"
)

const uniqueViolation = "23505"

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) Repository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, username, login, first_name, last_name, site,
	admin_flag, uploader_flag, reviewer_flag, third_reviewer_flag`

func (r *userRepoPG) scanRow(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Login, &u.FirstName, &u.LastName, &u.Site,
		&u.Admin, &u.Uploader, &u.Reviewer, &u.ThirdReviewer)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrLoginTaken
	}
	return err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (username, login, first_name, last_name, site,
			admin_flag, uploader_flag, reviewer_flag, third_reviewer_flag)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		u.Username, u.Login, u.FirstName, u.LastName, u.Site,
		u.Admin, u.Uploader, u.Reviewer, u.ThirdReviewer).Scan(&u.ID)
	return mapWriteErr(err)
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByLogin(ctx context.Context, login string) (*User, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE login = $1`, login))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET username=$2, login=$3, first_name=$4, last_name=$5, site=$6,
			admin_flag=$7, uploader_flag=$8, reviewer_flag=$9, third_reviewer_flag=$10
		WHERE id = $1`,
		u.ID, u.Username, u.Login, u.FirstName, u.LastName, u.Site,
		u.Admin, u.Uploader, u.Reviewer, u.ThirdReviewer)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userCols + ` FROM users ORDER BY id`
	args := []interface{}{}
	if limit >= 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	items, err := r.collect(ctx, query, args...)
	return items, total, err
}

func (r *userRepoPG) ListWithFlag(ctx context.Context, third bool) ([]*User, error) {
	flag := "reviewer_flag"
	if third {
		flag = "third_reviewer_flag"
	}
	return r.collect(ctx, `SELECT `+userCols+` FROM users WHERE `+flag+` ORDER BY id`)
}

func (r *userRepoPG) collect(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
