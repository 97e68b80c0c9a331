package email

// Block ranks are strings over '0'..'z' compared byte-wise. Generated ranks
// never end in rankLow, so there is always room for another rank below any
// of them.
const (
	rankLow  = '0'
	rankHigh = 'z'
	rankMid  = 'U'
)

// rankBetween returns a rank sorting after lo and, unless hi is empty,
// before hi. lo must sort before hi.
func rankBetween(lo, hi string) string {
	if hi == "" {
		return lo + string(rune(rankMid))
	}

	out := make([]byte, 0, len(lo)+1)
	for i := 0; ; i++ {
		a := byte(rankLow)
		if i < len(lo) {
			a = lo[i]
		}
		b := byte(rankHigh)
		if i < len(hi) {
			b = hi[i]
		}
		if int(b)-int(a) > 1 {
			return string(append(out, a+(b-a)/2))
		}
		out = append(out, a)
	}
}

func rankFits(lo, rank, hi string) bool {
	return rank != "" && rank > lo && (hi == "" || rank < hi)
}

// rerank gives a fresh rank to every block that no longer sorts between its
// neighbours. blocks must be a ranked list with at most one adjacent swap.
func rerank(blocks []Block) {
	for i := range blocks {
		var lo, hi string
		if i > 0 {
			lo = blocks[i-1].Rank
		}
		if i < len(blocks)-1 {
			hi = blocks[i+1].Rank
		}
		if rankFits(lo, blocks[i].Rank, hi) {
			continue
		}
		blocks[i].Rank = rankBetween(lo, hi)
	}
}
