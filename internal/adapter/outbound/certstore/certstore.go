// Package certstore resolves TLS-terminating listeners' server certificates
// and this gateway's own HBONE workload identity from PEM files on disk,
// reloading a pair whenever its mtime moves forward so a certificate
// rotation lands without a restart. Every resolution takes the cache's read
// lock on the hot path; a miss or stale entry upgrades to the write lock and
// re-stats/re-parses just that one pair.
package certstore

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type cacheEntry struct {
	cert    *tls.Certificate
	modTime time.Time
}

// FileResolver implements bindrt.CertResolver against a directory of
// <ref>.crt/<ref>.key pairs, keyed by the certRef a store.TLSConfig names.
type FileResolver struct {
	dir string

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewFileResolver returns a resolver that loads certRef.crt/certRef.key
// pairs out of dir on first use.
func NewFileResolver(dir string) *FileResolver {
	return &FileResolver{dir: dir, cache: map[string]cacheEntry{}}
}

// Resolve returns the certificate named by certRef, loading or reloading it
// from disk as needed.
func (f *FileResolver) Resolve(certRef string) (*tls.Certificate, error) {
	certPath, keyPath := f.paths(certRef)

	modTime, err := newestModTime(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("certstore: stat %s: %w", certRef, err)
	}

	f.mu.RLock()
	entry, ok := f.cache[certRef]
	f.mu.RUnlock()
	if ok && !modTime.After(entry.modTime) {
		return entry.cert, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.cache[certRef]; ok && !modTime.After(entry.modTime) {
		return entry.cert, nil
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("certstore: load %s: %w", certRef, err)
	}
	f.cache[certRef] = cacheEntry{cert: &cert, modTime: modTime}
	return &cert, nil
}

func (f *FileResolver) paths(certRef string) (certPath, keyPath string) {
	return filepath.Join(f.dir, certRef+".crt"), filepath.Join(f.dir, certRef+".key")
}

func newestModTime(paths ...string) (time.Time, error) {
	var newest time.Time
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return time.Time{}, err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest, nil
}

// StaticWorkloadIdentity implements bindrt.WorkloadIdentity from a single
// cert/key pair on disk plus a fixed SPIFFE SAN allowlist for peers opening
// an inbound HBONE tunnel.
type StaticWorkloadIdentity struct {
	certPath, keyPath string
	peerIdentities    []string

	mu      sync.RWMutex
	cached  *tls.Certificate
	modTime time.Time
}

// NewStaticWorkloadIdentity returns a WorkloadIdentity that presents the
// certPath/keyPath pair and accepts only peers whose cert SANs include one
// of acceptedPeerIdentities.
func NewStaticWorkloadIdentity(certPath, keyPath string, acceptedPeerIdentities []string) *StaticWorkloadIdentity {
	return &StaticWorkloadIdentity{certPath: certPath, keyPath: keyPath, peerIdentities: acceptedPeerIdentities}
}

// ServerCertificate returns this gateway's mTLS identity, reloading it from
// disk if either file's mtime has moved forward since the last call.
func (w *StaticWorkloadIdentity) ServerCertificate() (*tls.Certificate, error) {
	modTime, err := newestModTime(w.certPath, w.keyPath)
	if err != nil {
		return nil, fmt.Errorf("certstore: stat workload identity: %w", err)
	}

	w.mu.RLock()
	if w.cached != nil && !modTime.After(w.modTime) {
		cert := w.cached
		w.mu.RUnlock()
		return cert, nil
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cached != nil && !modTime.After(w.modTime) {
		return w.cached, nil
	}

	cert, err := tls.LoadX509KeyPair(w.certPath, w.keyPath)
	if err != nil {
		return nil, fmt.Errorf("certstore: load workload identity: %w", err)
	}
	w.cached = &cert
	w.modTime = modTime
	return w.cached, nil
}

// AcceptedPeerIdentities returns the SPIFFE SAN allowlist configured for
// this workload.
func (w *StaticWorkloadIdentity) AcceptedPeerIdentities() []string {
	return w.peerIdentities
}
