package smtptest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveEmails(t *testing.T) {
	es := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		rejected: map[string]struct{}{},
	}

	es.saveEmail(Message{Body: "first"})
	// Keep the timestamps apart on coarse clocks
	time.Sleep(10 * time.Millisecond)
	cut := time.Now().UnixNano()
	es.saveEmail(Message{Body: "second"})

	testCases := []struct {
		description string
		since       int64
		expected    []string
	}{
		{description: "everything", since: 0, expected: []string{"first", "second"}},
		{description: "after the cut", since: cut, expected: []string{"second"}},
		{description: "in the future", since: time.Now().Add(time.Hour).UnixNano(), expected: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			ems, err := es.RetrieveEmails(tc.since)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ems)
		})
	}
}

func TestStartServerReceivesNothingAtFirst(t *testing.T) {
	var s Server = StartServer(t)

	assert.NotEmpty(t, s.Address())
	ems, err := s.RetrieveEmails(0)
	require.NoError(t, err)
	assert.Empty(t, ems)
}
