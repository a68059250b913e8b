package ctcclient

import (
	"sync"
)

const (

	// Node states for the API to report
	CONNECTED    = "connected"
	ARCHIVE      = "archive"
	PRUNED       = "pruned"
	DISCONNECTED = "disconnected"
)

type ChainStatus struct {
	lock sync.RWMutex

	URL         string `json:"url"`
	Chain       string `json:"chain"`
	SpecVersion uint32 `json:"specVersion"`
	GenesisHash string `json:"genesisHash"`

	Head       uint64 `json:"head"`
	FirstBlock uint64 `json:"firstBlock"`

	State    string `json:"state"`
	ErrorMsg string `json:"error"`
}

// Snapshot copies the status for serialising
func (s *ChainStatus) Snapshot() ChainStatus {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return ChainStatus{
		URL:         s.URL,
		Chain:       s.Chain,
		SpecVersion: s.SpecVersion,
		GenesisHash: s.GenesisHash,
		Head:        s.Head,
		FirstBlock:  s.FirstBlock,
		State:       s.State,
		ErrorMsg:    s.ErrorMsg,
	}
}

func (s *ChainStatus) SetChain(info ChainInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Chain = info.Chain
	s.SpecVersion = info.SpecVersion
	s.GenesisHash = info.GenesisHash
	if s.State == "" {
		s.State = CONNECTED
	}
}

func (s *ChainStatus) SetHead(head uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Head = head
}

func (s *ChainStatus) SetFirstBlock(first uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.FirstBlock = first
	if first == 0 {
		s.State = ARCHIVE
	} else {
		s.State = PRUNED
	}
}

func (s *ChainStatus) SetError(e error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ErrorMsg = e.Error()
	s.State = DISCONNECTED
}

func (s *ChainStatus) ClearError() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ErrorMsg = ""
	if s.State == DISCONNECTED {
		s.State = CONNECTED
	}
}
