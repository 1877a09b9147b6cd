package chunkstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/repository"
	"videoverse/video-api/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// --- Error Definitions ---
var (
	// ErrRegisterFailed means reassembly produced a valid file but handing it
	// to the catalog (or storage) failed. The session is retained so the
	// client can retry by resubmitting any chunk.
	ErrRegisterFailed = errors.New("reassembly succeeded but asset registration failed")

	// ErrSessionReclaimed means a chunk arrived for a session the TTL sweeper
	// already reclaimed. The staging data is gone; the client must restart the
	// upload.
	ErrSessionReclaimed = fmt.Errorf("%w: upload session expired and was reclaimed", domain.ErrNotFound)
)

// Prober discovers media metadata for a finished file. Satisfied by the
// media transformer; probing failures only leave duration at 0.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// Outcome reports the result of one chunk submission.
type Outcome struct {
	Completed bool          // True once the final chunk triggered reassembly and registration
	Received  int           // Distinct chunk indices received so far
	Total     int           // Total chunks fixed for the session
	Asset     *domain.Asset // Set only when Completed
}

// session pairs the bookkeeping record with its own lock. The per-session
// lock is the critical section around chunk writes and the completion check,
// so exactly one reassembly fires even when the last two chunks race.
type session struct {
	mu        sync.Mutex
	data      domain.UploadSession
	finalized bool // Completed: reassembled and registered
	reclaimed bool // Swept: staging purged after TTL expiry
}

// ChunkStore is the staging area for chunked uploads. Chunks are persisted
// per (sessionID, index) under the staging directory; a completed session is
// reassembled strictly in index order, registered with the asset catalog and
// then purged.
type ChunkStore struct {
	stagingDir string
	sessionTTL time.Duration
	catalog    repository.AssetRepository
	files      storage.FileStorage
	prober     Prober

	mu       sync.Mutex // Guards the sessions map only
	sessions map[string]*session

	now func() time.Time // Injectable clock
}

// NewChunkStore creates the staging area rooted at stagingDir. Sessions
// inactive for longer than sessionTTL are eligible for reclamation by the
// sweeper. prober may be nil; then durations stay 0 until probed elsewhere.
func NewChunkStore(stagingDir string, sessionTTL time.Duration, catalog repository.AssetRepository, files storage.FileStorage, prober Prober) (*ChunkStore, error) {
	if stagingDir == "" {
		return nil, errors.New("chunk staging directory cannot be empty")
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &ChunkStore{
		stagingDir: stagingDir,
		sessionTTL: sessionTTL,
		catalog:    catalog,
		files:      files,
		prober:     prober,
		sessions:   make(map[string]*session),
		now:        time.Now,
	}, nil
}

// Submit persists one chunk and, when it completes the session, performs the
// reassembly and registration. Resubmitting an already-received index
// overwrites the staged chunk deterministically.
func (cs *ChunkStore) Submit(ctx context.Context, sessionID string, index, totalChunks int, fileName string, chunk io.Reader) (Outcome, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return Outcome{}, domain.ValidationErrorf("invalid file_id")
	}
	if fileName == "" {
		return Outcome{}, domain.ValidationErrorf("file_name is required")
	}
	if totalChunks < 1 {
		return Outcome{}, domain.ValidationErrorf("total_chunks must be at least 1, got %d", totalChunks)
	}
	if index < 1 || index > totalChunks {
		return Outcome{}, domain.ValidationErrorf("chunk_number %d out of range 1..%d", index, totalChunks)
	}

	sess := cs.getOrCreate(sessionID, totalChunks, fileName)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.reclaimed {
		// The sweeper purged this session while the submission was in flight.
		// Its chunks are gone, so progress would be a lie.
		return Outcome{}, ErrSessionReclaimed
	}
	if sess.finalized {
		// A racing submission already completed this session. Exactly one
		// reassembly fires; the loser just reports progress.
		return Outcome{Received: sess.data.ReceivedCount(), Total: sess.data.TotalChunks}, nil
	}

	// TotalChunks is fixed by the first chunk of the session.
	if totalChunks != sess.data.TotalChunks {
		return Outcome{}, fmt.Errorf("%w: session %s expects %d chunks, got %d",
			domain.ErrSessionConflict, sessionID, sess.data.TotalChunks, totalChunks)
	}

	if err := cs.writeChunk(sessionID, index, chunk); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist chunk %d of session %s: %w", index, sessionID, err)
	}

	sess.data.Received[index] = true
	sess.data.LastActivityAt = cs.now()

	if !sess.data.IsComplete() {
		return Outcome{Received: sess.data.ReceivedCount(), Total: sess.data.TotalChunks}, nil
	}

	// Final chunk: reassemble under the session lock.
	asset, err := cs.finalize(ctx, sess)
	if err != nil {
		// Session and chunks are retained; the distinct error kind tells the
		// caller reassembly itself was not the problem.
		return Outcome{Received: sess.data.ReceivedCount(), Total: sess.data.TotalChunks}, err
	}

	sess.finalized = true
	cs.remove(sessionID)
	cs.purgeChunks(sessionID)

	return Outcome{
		Completed: true,
		Received:  sess.data.ReceivedCount(),
		Total:     sess.data.TotalChunks,
		Asset:     asset,
	}, nil
}

// SessionCount returns the number of in-flight sessions.
func (cs *ChunkStore) SessionCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.sessions)
}

// RunSweeper reclaims abandoned sessions until the context is cancelled.
func (cs *ChunkStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.Sweep()
		}
	}
}

// Sweep purges every session whose last activity is older than the TTL and
// returns the ids of the reclaimed sessions. Abandonment is never silent.
func (cs *ChunkStore) Sweep() []string {
	cutoff := cs.now().Add(-cs.sessionTTL)

	cs.mu.Lock()
	var stale []*session
	for _, sess := range cs.sessions {
		stale = append(stale, sess)
	}
	cs.mu.Unlock()

	var reclaimed []string
	for _, sess := range stale {
		sess.mu.Lock()
		expired := !sess.finalized && !sess.reclaimed && sess.data.LastActivityAt.Before(cutoff)
		if expired {
			sess.reclaimed = true // Late submitters holding this handle get ErrSessionReclaimed
			cs.remove(sess.data.SessionID)
			cs.purgeChunks(sess.data.SessionID)
			log.Printf("WARN: Upload session %s abandoned (%d/%d chunks, inactive since %s); staging purged",
				sess.data.SessionID, sess.data.ReceivedCount(), sess.data.TotalChunks,
				sess.data.LastActivityAt.Format(time.RFC3339))
			reclaimed = append(reclaimed, sess.data.SessionID)
		}
		sess.mu.Unlock()
	}
	return reclaimed
}

// --- internals ---

func (cs *ChunkStore) getOrCreate(sessionID string, totalChunks int, fileName string) *session {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if sess, ok := cs.sessions[sessionID]; ok {
		return sess
	}
	now := cs.now()
	sess := &session{
		data: domain.UploadSession{
			SessionID:      sessionID,
			FileName:       fileName,
			TotalChunks:    totalChunks,
			Received:       make(map[int]bool),
			CreatedAt:      now,
			LastActivityAt: now,
		},
	}
	cs.sessions[sessionID] = sess
	return sess
}

func (cs *ChunkStore) remove(sessionID string) {
	cs.mu.Lock()
	delete(cs.sessions, sessionID)
	cs.mu.Unlock()
}

func (cs *ChunkStore) sessionDir(sessionID string) string {
	return filepath.Join(cs.stagingDir, sessionID)
}

func (cs *ChunkStore) chunkPath(sessionID string, index int) string {
	return filepath.Join(cs.sessionDir(sessionID), fmt.Sprintf("chunk_%06d", index))
}

// writeChunk persists one chunk to its deterministic location. os.Create
// truncates, so a retried chunk overwrites instead of duplicating storage.
func (cs *ChunkStore) writeChunk(sessionID string, index int, chunk io.Reader) error {
	if err := os.MkdirAll(cs.sessionDir(sessionID), 0o755); err != nil {
		return err
	}
	f, err := os.Create(cs.chunkPath(sessionID, index))
	if err != nil {
		return err
	}
	_, err = io.Copy(f, chunk)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// finalize concatenates the chunks strictly in index order, stores the
// assembled file and registers it with the catalog. Called with the session
// lock held.
func (cs *ChunkStore) finalize(ctx context.Context, sess *session) (*domain.Asset, error) {
	// The assembled file lives outside the session dir: it must survive the
	// post-registration purge until async probing is done with it.
	assembledPath := filepath.Join(cs.stagingDir, "assembled-"+uuid.NewString())
	size, checksum, err := cs.reassemble(sess, assembledPath)
	if err != nil {
		os.Remove(assembledPath)
		return nil, fmt.Errorf("failed to reassemble session %s: %w", sess.data.SessionID, err)
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(assembledPath); err == nil {
		contentType = mtype.String()
	}

	storageKey := fmt.Sprintf("videos/uploads/%s/%s", uuid.NewString(), sess.data.FileName)

	assembled, err := os.Open(assembledPath)
	if err != nil {
		os.Remove(assembledPath)
		return nil, fmt.Errorf("%w: %v", ErrRegisterFailed, err)
	}
	_, err = cs.files.Save(ctx, storageKey, assembled)
	assembled.Close()
	if err != nil {
		os.Remove(assembledPath)
		return nil, fmt.Errorf("%w: %v", ErrRegisterFailed, err)
	}

	asset := &domain.Asset{
		StorageKey:  storageKey,
		FileName:    sess.data.FileName,
		ContentType: contentType,
		Size:        size,
		Checksum:    checksum,
	}
	if _, err := cs.catalog.Create(ctx, asset); err != nil {
		// Session stays alive for a retry; each attempt stores under a fresh
		// key, so drop this attempt's object.
		_ = cs.files.Delete(ctx, storageKey)
		os.Remove(assembledPath)
		return nil, fmt.Errorf("%w: %v", ErrRegisterFailed, err)
	}

	cs.probeLater(asset, assembledPath)
	return asset, nil
}

// reassemble concatenates chunks 1..TotalChunks into outPath and returns the
// byte size and BLAKE2b digest of the result. Index order, not arrival
// order, determines the byte layout.
func (cs *ChunkStore) reassemble(sess *session, outPath string) (int64, string, error) {
	out, err := os.Create(outPath)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return 0, "", err
	}
	w := io.MultiWriter(out, hasher)

	var size int64
	for index := 1; index <= sess.data.TotalChunks; index++ {
		n, err := cs.appendChunk(w, sess.data.SessionID, index)
		if err != nil {
			return 0, "", fmt.Errorf("chunk %d: %w", index, err)
		}
		size += n
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (cs *ChunkStore) appendChunk(w io.Writer, sessionID string, index int) (int64, error) {
	f, err := os.Open(cs.chunkPath(sessionID, index))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// probeLater fills in the asset duration once ffprobe finishes, then removes
// the assembled staging file. Duration stays 0 if probing is unavailable.
func (cs *ChunkStore) probeLater(asset *domain.Asset, assembledPath string) {
	if cs.prober == nil {
		os.Remove(assembledPath)
		return
	}
	assetID := asset.ID
	size := asset.Size
	go func() {
		defer os.Remove(assembledPath)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		duration, err := cs.prober.Probe(ctx, assembledPath)
		if err != nil {
			log.Printf("WARN: Could not probe duration for asset %s: %v", assetID, err)
			return
		}
		if err := cs.catalog.UpdateMedia(ctx, assetID, duration, size); err != nil {
			log.Printf("WARN: Could not record duration for asset %s: %v", assetID, err)
		}
	}()
}

func (cs *ChunkStore) purgeChunks(sessionID string) {
	if err := os.RemoveAll(cs.sessionDir(sessionID)); err != nil {
		log.Printf("WARN: Could not purge staging for session %s: %v", sessionID, err)
	}
}
