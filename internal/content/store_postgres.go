package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on top of an already migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) ListModules(ctx context.Context) ([]Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, code, text, photo FROM modules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Code, &m.Text, &m.Photo); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetModule(ctx context.Context, code string) (Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var m Module
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, text, photo FROM modules WHERE code = $1`,
		code,
	).Scan(&m.ID, &m.Code, &m.Text, &m.Photo)
	if errors.Is(err, pgx.ErrNoRows) {
		return Module{}, fmt.Errorf("module %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return Module{}, fmt.Errorf("get module: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) CreateModule(ctx context.Context, m Module) (Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO modules (code, text, photo) VALUES ($1, $2, $3) RETURNING id`,
		m.Code, m.Text, m.Photo,
	).Scan(&m.ID)
	if isUniqueViolation(err) {
		return Module{}, fmt.Errorf("module %s: %w", m.Code, ErrConflict)
	}
	if err != nil {
		return Module{}, fmt.Errorf("create module: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) DeleteModule(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM modules WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("module %s: %w", code, ErrNotFound)
	}
	return nil
}

const lessonColumns = `l.id, l.module_id, m.code, l.code, l.number, l.text, l.photo, l.video_url, l.notes_url`

func (s *PostgresStore) ListLessons(ctx context.Context, moduleCode string) ([]Lesson, error) {
	return s.queryLessons(ctx,
		`SELECT `+lessonColumns+`
		 FROM lessons l JOIN modules m ON m.id = l.module_id
		 WHERE m.code = $1
		 ORDER BY l.number`,
		moduleCode,
	)
}

func (s *PostgresStore) AllLessons(ctx context.Context) ([]Lesson, error) {
	return s.queryLessons(ctx,
		`SELECT `+lessonColumns+`
		 FROM lessons l JOIN modules m ON m.id = l.module_id
		 ORDER BY m.id, l.number`,
	)
}

func (s *PostgresStore) queryLessons(ctx context.Context, query string, args ...any) ([]Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLesson(row pgx.Row) (Lesson, error) {
	var l Lesson
	if err := row.Scan(&l.ID, &l.ModuleID, &l.ModuleCode, &l.Code, &l.Number,
		&l.Text, &l.Photo, &l.VideoURL, &l.NotesURL); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (s *PostgresStore) GetLesson(ctx context.Context, code string) (Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	l, err := scanLesson(s.pool.QueryRow(ctx,
		`SELECT `+lessonColumns+`
		 FROM lessons l JOIN modules m ON m.id = l.module_id
		 WHERE l.code = $1`,
		code,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lesson{}, fmt.Errorf("lesson %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return Lesson{}, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) CreateLesson(ctx context.Context, l Lesson) (Lesson, error) {
	m, err := s.GetModule(ctx, l.ModuleCode)
	if err != nil {
		return Lesson{}, err
	}
	if _, n, ok := ParseLessonCode(l.Code); ok {
		l.Number = n
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err = s.pool.QueryRow(ctx,
		`INSERT INTO lessons (module_id, code, number, text, photo, video_url, notes_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		m.ID, l.Code, l.Number, l.Text, l.Photo, l.VideoURL, l.NotesURL,
	).Scan(&l.ID)
	if isUniqueViolation(err) {
		return Lesson{}, fmt.Errorf("lesson %s: %w", l.Code, ErrConflict)
	}
	if err != nil {
		return Lesson{}, fmt.Errorf("create lesson: %w", err)
	}
	l.ModuleID = m.ID
	return l, nil
}

var lessonFieldColumns = map[LessonField]string{
	LessonText:  "text",
	LessonPhoto: "photo",
	LessonVideo: "video_url",
	LessonNotes: "notes_url",
}

func (s *PostgresStore) UpdateLesson(ctx context.Context, code string, field LessonField, value string) error {
	column, ok := lessonFieldColumns[field]
	if !ok {
		return fmt.Errorf("unknown lesson field %q", field)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE lessons SET `+column+` = $1 WHERE code = $2`, value, code)
	if err != nil {
		return fmt.Errorf("update lesson %s: %w", field, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lesson %s: %w", code, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteLesson(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM lessons WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lesson %s: %w", code, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, lessonCode string) ([]Question, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, lesson_code, question, option_1, option_2, option_3, correct, photo
		 FROM test_questions
		 WHERE lesson_code = $1
		 ORDER BY id`,
		lessonCode,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var opt1, opt2 string
		var opt3, photo *string
		if err := rows.Scan(&q.ID, &q.LessonCode, &q.Text, &opt1, &opt2, &opt3, &q.Correct, &photo); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Options = []string{opt1, opt2}
		if opt3 != nil {
			q.Options = append(q.Options, *opt3)
		}
		if photo != nil {
			q.Photo = *photo
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	if err := q.Check(); err != nil {
		return Question{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO test_questions (lesson_code, question, option_1, option_2, option_3, correct, photo)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		q.LessonCode, q.Text, q.Options[0], q.Options[1], thirdOption(q.Options), q.Correct, nullIfEmpty(q.Photo),
	).Scan(&q.ID)
	if isForeignKeyViolation(err) {
		return Question{}, fmt.Errorf("lesson %s: %w", q.LessonCode, ErrNotFound)
	}
	if err != nil {
		return Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, q Question) error {
	if err := q.Check(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE test_questions
		 SET question = $1, option_1 = $2, option_2 = $3, option_3 = $4, correct = $5, photo = $6
		 WHERE id = $7`,
		q.Text, q.Options[0], q.Options[1], thirdOption(q.Options), q.Correct, nullIfEmpty(q.Photo), q.ID,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question %d: %w", q.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteQuestion(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM test_questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, username, is_admin FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) EnsureUser(ctx context.Context, u User) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, first_name, last_name, username, is_admin)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		u.ID, u.FirstName, u.LastName, u.Username, u.IsAdmin,
	)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, first_name, last_name, username, is_admin FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.IsAdmin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateUserName(ctx context.Context, id int64, firstName, lastName string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET first_name = $1, last_name = $2 WHERE id = $3`,
		firstName, lastName, id,
	)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_admin = $1 WHERE id = $2`, isAdmin, id)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListProgress(ctx context.Context, userID int64) ([]Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, lesson_code, completed_at FROM user_progress
		 WHERE user_id = $1 ORDER BY lesson_code`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		if err := rows.Scan(&p.UserID, &p.LessonCode, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkLessonCompleted(ctx context.Context, userID int64, lessonCode string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_progress (user_id, lesson_code) VALUES ($1, $2)
		 ON CONFLICT (user_id, lesson_code) DO NOTHING`,
		userID, lessonCode,
	)
	if err != nil {
		return fmt.Errorf("mark lesson completed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListScores(ctx context.Context, userID int64) ([]Score, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, test_code, score, total, updated_at FROM user_test_scores
		 WHERE user_id = $1 ORDER BY test_code`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var sc Score
		if err := rows.Scan(&sc.UserID, &sc.TestCode, &sc.Score, &sc.Total, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveScore(ctx context.Context, sc Score) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_test_scores (user_id, test_code, score, total, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (user_id, test_code)
		 DO UPDATE SET score = EXCLUDED.score, total = EXCLUDED.total, updated_at = NOW()`,
		sc.UserID, sc.TestCode, sc.Score, sc.Total,
	)
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reconcile(ctx context.Context) (ReconcileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT code FROM lessons`)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("query lesson codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("collect lesson codes: %w", err)
	}
	testCodes := make([]string, 0, len(codes))
	for _, c := range codes {
		testCodes = append(testCodes, TestCodeFor(c))
	}

	var res ReconcileResult
	tag, err := tx.Exec(ctx, `DELETE FROM user_progress WHERE NOT (lesson_code = ANY($1))`, codes)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("delete orphaned progress: %w", err)
	}
	res.ProgressRemoved = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM user_test_scores WHERE NOT (test_code = ANY($1))`, testCodes)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("delete orphaned scores: %w", err)
	}
	res.ScoresRemoved = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return ReconcileResult{}, fmt.Errorf("commit reconcile: %w", err)
	}
	return res, nil
}

func thirdOption(options []string) any {
	if len(options) < 3 {
		return nil
	}
	return options[2]
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
