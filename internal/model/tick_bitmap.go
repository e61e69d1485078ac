package model

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sort"
	"time"
)

const bitmapWordEncodedSize = 12 // int32 word index + uint64 word

// TickBitmap is a sparse set of initialized tick positions, stored as 64-bit
// words keyed by word index. Negative positions are supported. A bit being
// set must mirror the corresponding tick's gross liquidity being non-zero;
// keeping the two in sync is the consumer's job.
type TickBitmap struct {
	Pair      string
	Words     map[int]uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewTickBitmap(pair string) *TickBitmap {
	now := time.Now().UTC()
	return &TickBitmap{
		Pair:      pair,
		Words:     make(map[int]uint64),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// wordBit splits a tick position into word index and bit offset. Arithmetic
// shift keeps negative positions contiguous (-1 lands in word -1, bit 63).
func wordBit(position int) (int, uint) {
	return position >> 6, uint(position & 63)
}

// SetBit marks a tick position as initialized.
func (b *TickBitmap) SetBit(position int) {
	if b.Words == nil {
		b.Words = make(map[int]uint64)
	}
	word, bit := wordBit(position)
	b.Words[word] |= 1 << bit
	b.UpdatedAt = time.Now().UTC()
}

// ClearBit unmarks a tick position.
func (b *TickBitmap) ClearBit(position int) {
	word, bit := wordBit(position)
	if value, ok := b.Words[word]; ok {
		value &^= 1 << bit
		if value == 0 {
			delete(b.Words, word)
		} else {
			b.Words[word] = value
		}
	}
	b.UpdatedAt = time.Now().UTC()
}

// IsSet reports whether a tick position is marked.
func (b *TickBitmap) IsSet(position int) bool {
	word, bit := wordBit(position)
	return b.Words[word]&(1<<bit) != 0
}

// FlipBit mutates the bit for a tick only when the tick actually flipped, in
// which case the bit is set to the tick's initialized state. Returns whether
// the stored bit changed.
func (b *TickBitmap) FlipBit(position int, flipped, initialized bool) bool {
	if !flipped {
		return false
	}
	was := b.IsSet(position)
	if initialized == was {
		return false
	}
	if initialized {
		b.SetBit(position)
	} else {
		b.ClearBit(position)
	}
	return true
}

// NextInitialized scans forward from the given position (inclusive) for the
// nearest set bit.
func (b *TickBitmap) NextInitialized(from int) (int, bool) {
	fromWord, fromBit := wordBit(from)
	for _, word := range b.sortedWords() {
		if word < fromWord {
			continue
		}
		value := b.Words[word]
		if word == fromWord {
			value &= ^uint64(0) << fromBit
		}
		if value == 0 {
			continue
		}
		return word<<6 + bits.TrailingZeros64(value), true
	}
	return 0, false
}

// PreviousInitialized scans backward from the given position (inclusive) for
// the nearest set bit.
func (b *TickBitmap) PreviousInitialized(from int) (int, bool) {
	fromWord, fromBit := wordBit(from)
	sorted := b.sortedWords()
	for i := len(sorted) - 1; i >= 0; i-- {
		word := sorted[i]
		if word > fromWord {
			continue
		}
		value := b.Words[word]
		if word == fromWord {
			value &= ^uint64(0) >> (63 - fromBit)
		}
		if value == 0 {
			continue
		}
		return word<<6 + 63 - bits.LeadingZeros64(value), true
	}
	return 0, false
}

// NextSetBit returns the nearest set position at or after from, or -1 when
// none exists.
func (b *TickBitmap) NextSetBit(from int) int {
	if position, ok := b.NextInitialized(from); ok {
		return position
	}
	return -1
}

// PreviousSetBit returns the nearest set position at or before from, or -1
// when none exists.
func (b *TickBitmap) PreviousSetBit(from int) int {
	if position, ok := b.PreviousInitialized(from); ok {
		return position
	}
	return -1
}

// SetBits returns a fresh ascending snapshot of every set position.
func (b *TickBitmap) SetBits() []int {
	positions := make([]int, 0)
	for _, word := range b.sortedWords() {
		value := b.Words[word]
		for value != 0 {
			bit := bits.TrailingZeros64(value)
			positions = append(positions, word<<6+bit)
			value &^= 1 << uint(bit)
		}
	}
	return positions
}

// ToByteArray encodes the bitmap as a sequence of (word index, word) pairs in
// ascending word order, big endian. The encoding round-trips exactly.
func (b *TickBitmap) ToByteArray() []byte {
	sorted := b.sortedWords()
	buf := make([]byte, 0, len(sorted)*bitmapWordEncodedSize)
	for _, word := range sorted {
		var entry [bitmapWordEncodedSize]byte
		binary.BigEndian.PutUint32(entry[0:4], uint32(int32(word)))
		binary.BigEndian.PutUint64(entry[4:12], b.Words[word])
		buf = append(buf, entry[:]...)
	}
	return buf
}

// FromByteArray replaces the bitmap contents with the decoded words.
func (b *TickBitmap) FromByteArray(data []byte) error {
	if len(data)%bitmapWordEncodedSize != 0 {
		return fmt.Errorf("bitmap encoding length %d is not a multiple of %d", len(data), bitmapWordEncodedSize)
	}
	words := make(map[int]uint64, len(data)/bitmapWordEncodedSize)
	for offset := 0; offset < len(data); offset += bitmapWordEncodedSize {
		word := int(int32(binary.BigEndian.Uint32(data[offset : offset+4])))
		value := binary.BigEndian.Uint64(data[offset+4 : offset+12])
		if value != 0 {
			words[word] = value
		}
	}
	b.Words = words
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (b *TickBitmap) sortedWords() []int {
	sorted := make([]int, 0, len(b.Words))
	for word, value := range b.Words {
		if value != 0 {
			sorted = append(sorted, word)
		}
	}
	sort.Ints(sorted)
	return sorted
}

// MessageView is the flat snapshot published downstream.
func (b *TickBitmap) MessageView() map[string]any {
	return map[string]any{
		"pair":      b.Pair,
		"setBits":   b.SetBits(),
		"createdAt": b.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
