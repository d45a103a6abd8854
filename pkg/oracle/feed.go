package oracle

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// On-chain price feed account layout (Pyth v2 price account). The feed
// is a signed on-chain publication, not a centralized API, so the only
// trust point is the publisher set behind the feed itself.
const (
	feedMagic       = 0xa1b2c3d4
	feedVersion     = 2
	feedTypePrice   = 3
	statusTrading   = 1
	minFeedDataSize = 240

	offMagic     = 0
	offVersion   = 4
	offAcctType  = 8
	offExponent  = 20
	offTimestamp = 96
	offAggPrice  = 208
	offAggConf   = 216
	offAggStatus = 224
)

// FeedPrice is a decoded on-chain price publication.
type FeedPrice struct {
	Price       decimal.Decimal
	Confidence  decimal.Decimal
	PublishedAt time.Time
}

// DecodeFeed parses the raw bytes of a price feed account.
func DecodeFeed(data []byte) (*FeedPrice, error) {
	if len(data) < minFeedDataSize {
		return nil, fmt.Errorf("feed account data too short: %d bytes", len(data))
	}

	if binary.LittleEndian.Uint32(data[offMagic:]) != feedMagic {
		return nil, fmt.Errorf("feed account has wrong magic")
	}
	if binary.LittleEndian.Uint32(data[offVersion:]) != feedVersion {
		return nil, fmt.Errorf("unsupported feed version %d", binary.LittleEndian.Uint32(data[offVersion:]))
	}
	if binary.LittleEndian.Uint32(data[offAcctType:]) != feedTypePrice {
		return nil, fmt.Errorf("account is not a price feed")
	}
	if binary.LittleEndian.Uint32(data[offAggStatus:]) != statusTrading {
		return nil, fmt.Errorf("feed is not in trading status")
	}

	exponent := int32(binary.LittleEndian.Uint32(data[offExponent:]))
	rawPrice := int64(binary.LittleEndian.Uint64(data[offAggPrice:]))
	rawConf := binary.LittleEndian.Uint64(data[offAggConf:])
	publishedAt := int64(binary.LittleEndian.Uint64(data[offTimestamp:]))

	if rawPrice <= 0 {
		return nil, fmt.Errorf("feed reports non-positive price %d", rawPrice)
	}
	if exponent < -18 || exponent > 18 {
		return nil, fmt.Errorf("feed exponent %d out of range", exponent)
	}
	if rawConf > math.MaxInt64 {
		return nil, fmt.Errorf("feed confidence overflows")
	}

	return &FeedPrice{
		Price:       decimal.New(rawPrice, exponent),
		Confidence:  decimal.New(int64(rawConf), exponent),
		PublishedAt: time.Unix(publishedAt, 0),
	}, nil
}
