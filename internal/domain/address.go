package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidEntityAddress = errors.New("invalid entity address")

// EntityAddress identifies a connection in USEF messages, formatted as
// "<scheme>.<date code>.<naming authority>:<owner id>:<asset id>".
type EntityAddress struct {
	Scheme          string
	DateCode        string
	NamingAuthority string
	OwnerID         int64
	AssetID         int64
}

// ParseEntityAddress parses addresses such as "ea1.2018-06.localhost:1:2".
func ParseEntityAddress(s string) (EntityAddress, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return EntityAddress{}, fmt.Errorf("%w: %q", ErrInvalidEntityAddress, s)
	}
	prefix := strings.SplitN(parts[0], ".", 3)
	if len(prefix) != 3 || !strings.HasPrefix(prefix[0], "ea") || prefix[2] == "" {
		return EntityAddress{}, fmt.Errorf("%w: %q", ErrInvalidEntityAddress, s)
	}
	owner, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return EntityAddress{}, fmt.Errorf("%w: bad owner id in %q", ErrInvalidEntityAddress, s)
	}
	asset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return EntityAddress{}, fmt.Errorf("%w: bad asset id in %q", ErrInvalidEntityAddress, s)
	}
	return EntityAddress{
		Scheme:          prefix[0],
		DateCode:        prefix[1],
		NamingAuthority: prefix[2],
		OwnerID:         owner,
		AssetID:         asset,
	}, nil
}

func (ea EntityAddress) String() string {
	return fmt.Sprintf("%s.%s.%s:%d:%d", ea.Scheme, ea.DateCode, ea.NamingAuthority, ea.OwnerID, ea.AssetID)
}
