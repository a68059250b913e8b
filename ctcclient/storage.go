package ctcclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ctcbalance/value"
)

// SCALE layouts of the storage items the tracker reads. Account ids are kept as
// plain byte arrays.

type activeEraInfo struct {
	Index types.U32
	Start types.OptionU64
}

type individualPoints struct {
	Validator [32]byte
	Points    types.U32
}

type eraRewardPoints struct {
	Total      types.U32
	Individual []individualPoints
}

type validatorPrefs struct {
	Commission types.UCompact
	Blocked    bool
}

type individualExposure struct {
	Who   [32]byte
	Value types.UCompact
}

type exposure struct {
	Total  types.UCompact
	Own    types.UCompact
	Others []individualExposure
}

type pagedExposureMetadata struct {
	Total          types.UCompact
	Own            types.UCompact
	NominatorCount types.U32
	PageCount      types.U32
}

type exposurePage struct {
	PageTotal types.UCompact
	Others    []individualExposure
}

type accountData struct {
	Free     types.U128
	Reserved types.U128
	Frozen   types.U128
	Flags    types.U128
}

type accountInfo struct {
	Nonce       types.U32
	Consumers   types.U32
	Providers   types.U32
	Sufficients types.U32
	Data        accountData
}

// storageDecoders turns raw SCALE bytes of a storage item into the value tree a
// dynamic decoder would produce for it
var storageDecoders = map[string]func([]byte) (*value.Value, error){
	"Staking.ActiveEra":           decodeActiveEra,
	"Staking.ErasValidatorReward": decodeU128,
	"Staking.ErasRewardPoints":    decodeRewardPoints,
	"Staking.ErasValidatorPrefs":  decodeValidatorPrefs,
	"Staking.ErasStakersOverview": decodeExposureMetadata,
	"Staking.ErasStakersClipped":  decodeExposure,
	"Staking.ErasStakersPaged":    decodeExposurePage,
	"System.Account":              decodeAccountInfo,
	"Timestamp.Now":               decodeU64,
}

// FetchStorage reads pallet.item at block `at`. Keys may be uint32 (era, page),
// uint64, [32]byte account ids, or pre-encoded []byte. A key with no value, or an
// item the runtime does not have, yields (nil, nil).
func (c *Client) FetchStorage(ctx context.Context, pallet, item string, keys []any, at types.Hash) (*value.Value, error) {

	name := pallet + "." + item

	decode, ok := storageDecoders[name]
	if !ok {
		return nil, errors.Errorf("No decoder for storage item %s", name)
	}

	meta := c.metadata()

	if _, err := meta.FindStorageEntryMetadata(pallet, item); err != nil {
		log.WithFields(log.Fields{
			"Pallet": pallet, "Item": item,
		}).Trace("Storage item not in runtime metadata")
		return nil, nil
	}

	args := make([][]byte, len(keys))
	for i, k := range keys {
		enc, err := encodeKey(k)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to encode key %d of %s", i, name)
		}
		args[i] = enc
	}

	key, err := types.CreateStorageKey(meta, pallet, item, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to create storage key for %s", name)
	}

	raw, err := call(ctx, c, "state_getStorage", func() (*types.StorageDataRaw, error) {
		return c.api.RPC.State.GetStorageRaw(key, at)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to fetch %s", name)
	}

	if raw == nil || len(*raw) == 0 {
		return nil, nil
	}

	v, err := decode(*raw)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode %s", name)
	}

	return v, nil
}

func encodeKey(k any) ([]byte, error) {

	switch t := k.(type) {
	case uint32:
		return codec.Encode(types.NewU32(t))
	case uint64:
		return codec.Encode(types.NewU64(t))
	case [32]byte:
		return t[:], nil
	case []byte:
		return t, nil
	}

	return nil, fmt.Errorf("unsupported key type %T", k)
}

func compactInt(c types.UCompact) *big.Int {
	n := big.Int(c)
	return new(big.Int).Set(&n)
}

func u128Int(u types.U128) *big.Int {
	if u.Int == nil {
		return new(big.Int)
	}
	return u.Int
}

func liftExposures(others []individualExposure) *value.Value {

	items := make([]*value.Value, len(others))
	for i, o := range others {
		items[i] = value.NewNamed(
			value.F("who", value.NewAccount(o.Who)),
			value.F("value", value.NewNumber(compactInt(o.Value))),
		)
	}

	return value.NewPositional(items...)
}

func decodeActiveEra(raw []byte) (*value.Value, error) {

	var era activeEraInfo
	if err := codec.Decode(raw, &era); err != nil {
		return nil, err
	}

	fields := []value.Field{value.F("index", value.NewUint(uint64(era.Index)))}
	if ok, start := era.Start.Unwrap(); ok {
		fields = append(fields, value.F("start", value.NewUint(uint64(start))))
	}

	return value.NewNamed(fields...), nil
}

func decodeU128(raw []byte) (*value.Value, error) {

	var n types.U128
	if err := codec.Decode(raw, &n); err != nil {
		return nil, err
	}

	return value.NewNumber(u128Int(n)), nil
}

func decodeU64(raw []byte) (*value.Value, error) {

	var n types.U64
	if err := codec.Decode(raw, &n); err != nil {
		return nil, err
	}

	return value.NewUint(uint64(n)), nil
}

func decodeRewardPoints(raw []byte) (*value.Value, error) {

	var pts eraRewardPoints
	if err := codec.Decode(raw, &pts); err != nil {
		return nil, err
	}

	pairs := make([]*value.Value, len(pts.Individual))
	for i, p := range pts.Individual {
		pairs[i] = value.NewPositional(value.NewAccount(p.Validator), value.NewUint(uint64(p.Points)))
	}

	return value.NewNamed(
		value.F("total", value.NewUint(uint64(pts.Total))),
		value.F("individual", value.NewPositional(pairs...)),
	), nil
}

func decodeValidatorPrefs(raw []byte) (*value.Value, error) {

	var prefs validatorPrefs
	if err := codec.Decode(raw, &prefs); err != nil {
		return nil, err
	}

	return value.NewNamed(
		value.F("commission", value.NewPositional(value.NewNumber(compactInt(prefs.Commission)))),
		value.F("blocked", value.NewBool(prefs.Blocked)),
	), nil
}

func decodeExposureMetadata(raw []byte) (*value.Value, error) {

	var m pagedExposureMetadata
	if err := codec.Decode(raw, &m); err != nil {
		return nil, err
	}

	return value.NewNamed(
		value.F("total", value.NewNumber(compactInt(m.Total))),
		value.F("own", value.NewNumber(compactInt(m.Own))),
		value.F("nominator_count", value.NewUint(uint64(m.NominatorCount))),
		value.F("page_count", value.NewUint(uint64(m.PageCount))),
	), nil
}

func decodeExposure(raw []byte) (*value.Value, error) {

	var e exposure
	if err := codec.Decode(raw, &e); err != nil {
		return nil, err
	}

	return value.NewNamed(
		value.F("total", value.NewNumber(compactInt(e.Total))),
		value.F("own", value.NewNumber(compactInt(e.Own))),
		value.F("others", liftExposures(e.Others)),
	), nil
}

func decodeExposurePage(raw []byte) (*value.Value, error) {

	var p exposurePage
	if err := codec.Decode(raw, &p); err != nil {
		return nil, err
	}

	return value.NewNamed(
		value.F("page_total", value.NewNumber(compactInt(p.PageTotal))),
		value.F("others", liftExposures(p.Others)),
	), nil
}

func decodeAccountInfo(raw []byte) (*value.Value, error) {

	var info accountInfo
	if err := codec.Decode(raw, &info); err != nil {
		return nil, err
	}

	return value.NewNamed(
		value.F("nonce", value.NewUint(uint64(info.Nonce))),
		value.F("consumers", value.NewUint(uint64(info.Consumers))),
		value.F("providers", value.NewUint(uint64(info.Providers))),
		value.F("sufficients", value.NewUint(uint64(info.Sufficients))),
		value.F("data", value.NewNamed(
			value.F("free", value.NewNumber(u128Int(info.Data.Free))),
			value.F("reserved", value.NewNumber(u128Int(info.Data.Reserved))),
			value.F("frozen", value.NewNumber(u128Int(info.Data.Frozen))),
			value.F("flags", value.NewNumber(u128Int(info.Data.Flags))),
		)),
	), nil
}
