package source

import "fmt"

// ringSize computes AF_PACKET ring geometry for a memory budget:
// frameSize is aligned to TPACKET_ALIGNMENT, blockSize is a multiple of
// both the page size and frameSize, and blockSize*numBlocks approximates
// the budget.
func ringSize(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const (
		tpacketAlignment = 16
		tpacketHdrLen    = 52
		maxBlockSize     = 4 << 20
	)

	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = (tpacketHdrLen + snapLen + tpacketAlignment - 1) / tpacketAlignment * tpacketAlignment

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Grow the frame until one of page or frame divides the other.
		if frameSize <= pageSize {
			frameSize = nextPow2(frameSize)
			blockSize = max(pageSize, frameSize)
		} else {
			frameSize = (frameSize + pageSize - 1) / pageSize * pageSize
			blockSize = frameSize
		}
	}

	numBlocks = max(bufferMB<<20/blockSize, 1)
	return frameSize, blockSize, numBlocks, nil
}

func nextPow2(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}
	return p
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
