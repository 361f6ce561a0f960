package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"gradebook/internal/classes"
	"gradebook/internal/db"
	"gradebook/internal/grading"
	"gradebook/internal/notify"
	"gradebook/internal/summary"

	"go.etcd.io/bbolt"
)

// Backend is the set of stores behind one STORE_BACKEND choice.
type Backend struct {
	Summaries   summary.Store
	Submissions grading.SubmissionStore
	Counters    grading.ActivityCounterStore
	Classes     classes.Directory
	Recipients  notify.RecipientResolver

	// SQL is set for the postgres backend so pool stats can be exported.
	SQL *sql.DB

	closers []func() error
}

func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Printf("backend close failed: %v", err)
		}
	}
}

func NewMemoryBackend() *Backend {
	return &Backend{
		Summaries:   summary.NewMemoryStore(),
		Submissions: grading.NewMemorySubmissionStore(),
		Counters:    grading.NewMemoryCounterStore(),
		Classes:     classes.NewMemoryDirectory(nil),
		Recipients:  notify.StaticRecipients{},
	}
}

func OpenBackend(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		conn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, db.PostgresConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		if cfg.DBEnsureSchema {
			if err := db.EnsureSchema(ctx, conn); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		return &Backend{
			Summaries:   summary.NewPostgresStore(conn),
			Submissions: grading.NewPostgresSubmissionStore(conn),
			Counters:    grading.NewPostgresCounterStore(conn),
			Classes:     classes.NewPostgresDirectory(conn),
			Recipients:  notify.NewPostgresRecipients(conn),
			SQL:         conn,
			closers:     []func() error{conn.Close},
		}, nil

	case BackendMongo:
		client, mdb, err := db.OpenMongo(ctx, db.DefaultMongoConfig(cfg.MongoURI, cfg.MongoDatabase))
		if err != nil {
			return nil, err
		}
		return &Backend{
			Summaries:   summary.NewMongoStore(mdb),
			Submissions: grading.NewMongoSubmissionStore(mdb),
			Counters:    grading.NewMongoCounterStore(mdb),
			Classes:     classes.NewMongoDirectory(mdb),
			Recipients:  notify.NewMongoRecipients(mdb),
			closers:     []func() error{func() error { return db.CloseMongo(client) }},
		}, nil

	case BackendBolt:
		bdb, err := db.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		b, err := newBoltBackend(bdb)
		if err != nil {
			_ = bdb.Close()
			return nil, err
		}
		b.closers = append(b.closers, bdb.Close)
		return b, nil

	default:
		return NewMemoryBackend(), nil
	}
}

func newBoltBackend(bdb *bbolt.DB) (*Backend, error) {
	summaries, err := summary.NewBoltStore(bdb)
	if err != nil {
		return nil, err
	}
	submissions, err := grading.NewBoltSubmissionStore(bdb)
	if err != nil {
		return nil, err
	}
	counters, err := grading.NewBoltCounterStore(bdb)
	if err != nil {
		return nil, err
	}
	dir, err := classes.NewBoltDirectory(bdb)
	if err != nil {
		return nil, err
	}
	recipients, err := notify.NewBoltRecipients(bdb)
	if err != nil {
		return nil, fmt.Errorf("open recipients: %w", err)
	}
	return &Backend{
		Summaries:   summaries,
		Submissions: submissions,
		Counters:    counters,
		Classes:     dir,
		Recipients:  recipients,
	}, nil
}

// NewNotifier picks SendGrid when an API key is set, then SMTP, then the log
// sink.
func NewNotifier(cfg Config, recipients notify.RecipientResolver) *notify.Dispatcher {
	var sink notify.Sink = notify.LogSink{}
	if sg := notify.NewSendGridSink(cfg.SendGridAPIKey, "Gradebook", cfg.SMTPFrom, recipients); sg != nil {
		sink = sg
	} else if sm := notify.NewSMTPSink(notify.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, recipients); sm != nil {
		sink = sm
	}
	return notify.NewDispatcher(sink, cfg.NotifyTimeout)
}
