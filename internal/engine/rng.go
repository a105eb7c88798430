package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math"
	"sync"
)

// Source yields floats in [0, 1). Implementations must be safe for concurrent use.
type Source interface {
	Float() float64
}

// byteGenerator streams HMAC-SHA256 output for one (server, client, nonce) triple.
// Each 32-byte round is keyed by the server seed over "client:nonce:round".
type byteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

func newByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *byteGenerator {
	bg := &byteGenerator{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	bg.generateRound()
	return bg
}

func (bg *byteGenerator) next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}
	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

func (bg *byteGenerator) nextFloat() float64 {
	return bytesToFloat([4]byte{bg.next(), bg.next(), bg.next(), bg.next()})
}

func (bg *byteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	message := fmt.Sprintf("%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

// bytesToFloat converts 4 bytes to a float in [0, 1) as sum(b[i] / 256^(i+1)).
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		result += float64(b) / math.Pow(256, float64(i+1))
	}
	return result
}

// Floats generates count floats for the given seeds and nonce starting at byte cursor.
func Floats(serverSeed, clientSeed string, nonce uint64, cursor uint64, count int) []float64 {
	bg := newByteGenerator(serverSeed, clientSeed, nonce, cursor)
	floats := make([]float64, count)
	for i := 0; i < count; i++ {
		floats[i] = bg.nextFloat()
	}
	return floats
}

// CryptoSource draws from crypto/rand.
type CryptoSource struct{}

// Float returns a uniformly distributed float in [0, 1).
func (CryptoSource) Float() float64 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		panic(fmt.Sprintf("engine: crypto/rand: %v", err))
	}
	return bytesToFloat(b)
}

// SeededSource is a provably fair source: every draw is the first float of
// HMAC-SHA256(serverSeed, "clientSeed:nonce:0") and consumes one nonce, so a
// draw can be replayed with Floats once the server seed is revealed.
type SeededSource struct {
	serverSeed string
	clientSeed string

	mu    sync.Mutex
	nonce uint64
}

// NewSeededSource returns a source whose first draw uses startNonce.
func NewSeededSource(serverSeed, clientSeed string, startNonce uint64) *SeededSource {
	return &SeededSource{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      startNonce,
	}
}

// Float returns the next float and advances the nonce.
func (s *SeededSource) Float() float64 {
	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.mu.Unlock()
	return Floats(s.serverSeed, s.clientSeed, nonce, 0, 1)[0]
}

// Nonce returns the nonce the next draw will use.
func (s *SeededSource) Nonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

// ServerSeedHash returns the hex SHA-256 of the server seed, which is safe to
// publish before the seed itself is revealed.
func (s *SeededSource) ServerSeedHash() string {
	sum := sha256.Sum256([]byte(s.serverSeed))
	return fmt.Sprintf("%x", sum[:])
}

// FixedSource always returns the same float. Useful for forcing a draw.
type FixedSource float64

// Float returns the fixed value.
func (f FixedSource) Float() float64 { return float64(f) }
