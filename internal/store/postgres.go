package store

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
)

const (
	roomsChannel        = "pokerplan_rooms"
	participantsChannel = "pokerplan_participants"

	listenerMinInterval = time.Second
	listenerMaxInterval = time.Minute
)

type PgSessionStore struct {
	conn     *sql.DB
	log      *log.Logger
	listener *pq.Listener

	watchLock sync.Mutex
	watchers  map[*Feed]*pgWatcher

	stop chan struct{}
	done chan struct{}
}

func NewPgSessionStore(logger *log.Logger, dsn string) (*PgSessionStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, MapError(err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, MapError(err)
	}

	s := &PgSessionStore{
		conn:     db,
		log:      logger,
		watchers: make(map[*Feed]*pgWatcher),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.listener = pq.NewListener(dsn, listenerMinInterval, listenerMaxInterval, s.listenerEvent)
	if err := s.listener.Listen(roomsChannel); err != nil {
		db.Close()
		return nil, MapError(err)
	}
	if err := s.listener.Listen(participantsChannel); err != nil {
		s.listener.Close()
		db.Close()
		return nil, MapError(err)
	}

	go s.dispatch()

	return s, nil
}

func (s *PgSessionStore) Ping() error {
	return MapError(s.conn.Ping())
}

func (s *PgSessionStore) Close() error {
	close(s.stop)
	<-s.done

	if err := s.listener.Close(); err != nil {
		s.log.Println("close listener:", err)
	}

	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
