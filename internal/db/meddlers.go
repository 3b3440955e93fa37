package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("address", hexMeddler[common.Address]{decode: common.HexToAddress})
	meddler.Register("hash", hexMeddler[common.Hash]{decode: common.HexToHash})
}

// hexText covers the fixed-size go-ethereum types stored as 0x-prefixed
// hex columns. Addresses come out in EIP-55 checksum form.
type hexText interface {
	common.Address | common.Hash
	Hex() string
}

// hexMeddler converts between a hexText field and its TEXT column. NULL
// reads as the zero value into a plain field and as nil into a pointer
// field; a nil pointer writes NULL.
type hexMeddler[T hexText] struct {
	decode func(string) T
}

func (m hexMeddler[T]) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (m hexMeddler[T]) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case *T:
		if !ns.Valid {
			var zero T
			*ptr = zero
			return nil
		}
		*ptr = m.decode(ns.String)
		return nil
	case **T:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		v := m.decode(ns.String)
		*ptr = &v
		return nil
	default:
		return fmt.Errorf("expected *%T or **%T, got %T", *new(T), *new(T), fieldAddr)
	}
}

func (m hexMeddler[T]) PreWrite(field any) (saveValue any, err error) {
	switch v := field.(type) {
	case T:
		return v.Hex(), nil
	case *T:
		if v == nil {
			return nil, nil
		}
		return (*v).Hex(), nil
	default:
		return nil, fmt.Errorf("expected %T or *%T, got %T", *new(T), *new(T), field)
	}
}
