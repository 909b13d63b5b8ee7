package store

import (
	"github.com/hrygo/tensai/internal/profile"
)

// Store provides database access to messages, users and their embeddings.
type Store struct {
	profile *profile.Profile
	driver  Driver
	vector  VectorDriver
}

// New creates a new instance of Store. driver and vector may share one database.
func New(driver Driver, vector VectorDriver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		vector:  vector,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) GetVectorDriver() VectorDriver {
	return s.vector
}

func (s *Store) Close() error {
	if any(s.vector) != any(s.driver) {
		if err := s.vector.Close(); err != nil {
			return err
		}
	}
	return s.driver.Close()
}
