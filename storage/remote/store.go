package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/student"
	"github.com/institutohope/platform/services/metrics"
)

const (
	uniqueViolation = "23505"

	// notification channel fired by the students table trigger
	channelStudentsChanged = "students_changed"
)

// Store is the networked backend: account identities in the accounts table,
// student records as JSONB documents in the students collection. It
// implements student.RemoteStore.
type Store struct {
	pool   *pgxpool.Pool
	logger core.Logger

	mu      sync.Mutex
	session *student.Handle // identity of the signed-in account, if any
}

var _ student.RemoteStore = (*Store)(nil)

// NewStore connects to the document store at dsn.
func NewStore(ctx context.Context, dsn string, logger core.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "creating connection pool")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "pinging document store")
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pool for migrations and diagnostics.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Authenticate(ctx context.Context, email, password string) (student.Handle, error) {
	var (
		id   string
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM accounts WHERE email = $1`, email,
	).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return student.Handle{}, student.ErrInvalidCredentials
		}
		return student.Handle{}, pkgerrors.Wrap(err, "looking up account")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return student.Handle{}, student.ErrInvalidCredentials
	}

	h := student.Handle{ID: id, Email: email}
	s.mu.Lock()
	s.session = &h
	s.mu.Unlock()
	return h, nil
}

func (s *Store) Register(ctx context.Context, email, password string) (student.Handle, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return student.Handle{}, pkgerrors.Wrap(err, "hashing password")
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash) VALUES ($1, $2, $3)`,
		id, email, string(hash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return student.Handle{}, student.ErrEmailExists
		}
		return student.Handle{}, pkgerrors.Wrap(err, "creating account")
	}

	h := student.Handle{ID: id, Email: email}
	s.mu.Lock()
	s.session = &h
	s.mu.Unlock()
	return h, nil
}

// EndSession drops the cached identity. Idempotent.
func (s *Store) EndSession(ctx context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) Fetch(ctx context.Context, id string) (student.Student, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM students WHERE id = $1`, id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, pkgerrors.Wrap(err, "fetching student document")
	}
	var rec student.Student
	if err = json.Unmarshal(doc, &rec); err != nil {
		return student.Student{}, pkgerrors.Wrap(err, "decoding student document")
	}
	return rec, nil
}

// Upsert merge-writes doc into the identified document. Fields absent from
// doc keep their stored values.
func (s *Store) Upsert(ctx context.Context, id string, doc map[string]interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return pkgerrors.Wrap(err, "encoding student document")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO students (id, doc) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = students.doc || EXCLUDED.doc, updated_at = now()`,
		id, b)
	if err != nil {
		metrics.RemoteWriteFailures.Inc()
	}
	return pkgerrors.Wrap(err, "upserting student document")
}

// Subscribe holds a dedicated connection LISTENing on the students channel
// and pushes the full collection snapshot to fn on every change, starting
// with the current state. fn is never invoked after cancel returns.
func (s *Store) Subscribe(ctx context.Context, fn func([]student.Student)) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "acquiring listener connection")
	}
	if _, err = conn.Exec(ctx, "LISTEN "+channelStudentsChanged); err != nil {
		conn.Release()
		return nil, pkgerrors.Wrap(err, "listening on students channel")
	}

	subCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer conn.Release()

		// current state first
		if snapshot, err := s.snapshot(subCtx); err == nil {
			if subCtx.Err() != nil {
				return
			}
			metrics.RosterSnapshots.Inc()
			fn(snapshot)
		} else if subCtx.Err() == nil {
			s.logger.Error(fmt.Sprintf("loading initial roster snapshot: %v", err), err)
		}

		for {
			if _, err := conn.Conn().WaitForNotification(subCtx); err != nil {
				if subCtx.Err() == nil {
					s.logger.Error(fmt.Sprintf("waiting for roster notification: %v", err), err)
				}
				return
			}
			snapshot, err := s.snapshot(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					s.logger.Error(fmt.Sprintf("loading roster snapshot: %v", err), err)
				}
				continue
			}
			if subCtx.Err() != nil {
				return
			}
			metrics.RosterSnapshots.Inc()
			fn(snapshot)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			<-done // no fn invocation can outlive this
		})
	}
	return cancel, nil
}

// snapshot reads the entire student collection.
func (s *Store) snapshot(ctx context.Context) ([]student.Student, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM students ORDER BY doc->>'name'`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying student collection")
	}
	defer rows.Close()

	var snapshot []student.Student
	for rows.Next() {
		var doc []byte
		if err = rows.Scan(&doc); err != nil {
			return nil, pkgerrors.Wrap(err, "scanning student document")
		}
		var rec student.Student
		if err = json.Unmarshal(doc, &rec); err != nil {
			return nil, pkgerrors.Wrap(err, "decoding student document")
		}
		snapshot = append(snapshot, rec)
	}
	return snapshot, rows.Err()
}
