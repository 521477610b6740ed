package model

import (
	"fmt"
	"strconv"
)

// ConfigKeyType enumerates the kinds of per-(table,key) metadata the config
// table can hold. The core engine writes DeltaToken rows, and UserDefined
// rows for each delta token's boundary offset (see
// NewDeltaTokenOffsetConfig); UserDefined is also available to callers for
// their own config rows, distinguished from the engine's by row id.
type ConfigKeyType int

const (
	DeltaToken ConfigKeyType = iota
	UserDefined
)

func (t ConfigKeyType) String() string {
	switch t {
	case DeltaToken:
		return "deltaToken"
	case UserDefined:
		return "userDefined"
	default:
		return "unknown"
	}
}

func parseConfigKeyType(s string) ConfigKeyType {
	if s == "deltaToken" {
		return DeltaToken
	}
	return UserDefined
}

// ConfigValue is a typed, persisted key used to store delta tokens and other
// per-(table, key) metadata.
type ConfigValue struct {
	ID      string
	Table   string
	KeyType ConfigKeyType
	Key     string
	Value   string
}

// DeltaTokenID builds the stable composite id for a delta token row:
// "deltaToken|{table}|{queryId}".
func DeltaTokenID(table, queryID string) string {
	return fmt.Sprintf("deltaToken|%s|%s", table, queryID)
}

// NewDeltaTokenConfig builds the ConfigValue row for a delta token.
func NewDeltaTokenConfig(table, queryID, isoTimestamp string) ConfigValue {
	return ConfigValue{
		ID:      DeltaTokenID(table, queryID),
		Table:   table,
		KeyType: DeltaToken,
		Key:     queryID,
		Value:   isoTimestamp,
	}
}

// DeltaTokenOffsetID builds the stable composite id for the row tracking
// how many records at the delta token's own timestamp boundary have
// already been ingested: "deltaTokenOffset|{table}|{queryId}". Paired with
// the delta token, this lets an incremental pull resume past a group of
// rows that share one __updatedAt value without either re-ingesting them
// forever or skipping past ones beyond the first page.
func DeltaTokenOffsetID(table, queryID string) string {
	return fmt.Sprintf("deltaTokenOffset|%s|%s", table, queryID)
}

// NewDeltaTokenOffsetConfig builds the ConfigValue row for a delta token's
// boundary offset.
func NewDeltaTokenOffsetConfig(table, queryID string, count int) ConfigValue {
	return ConfigValue{
		ID:      DeltaTokenOffsetID(table, queryID),
		Table:   table,
		KeyType: UserDefined,
		Key:     queryID,
		Value:   strconv.Itoa(count),
	}
}

// ToItem serializes c into the generic Item shape persisted to the config
// table: {id, table, keyType, key, value}.
func (c ConfigValue) ToItem() Item {
	return Item{
		"id":      c.ID,
		"table":   c.Table,
		"keyType": c.KeyType.String(),
		"key":     c.Key,
		"value":   c.Value,
	}
}

// ConfigValueFromItem is the inverse of ToItem: serializing a ConfigValue
// and deserializing the result must always yield back an equal value.
func ConfigValueFromItem(it Item) (ConfigValue, error) {
	id, _ := it["id"].(string)
	table, _ := it["table"].(string)
	keyType, _ := it["keyType"].(string)
	key, _ := it["key"].(string)
	value, _ := it["value"].(string)
	if id == "" {
		return ConfigValue{}, fmt.Errorf("config item missing id")
	}
	return ConfigValue{
		ID:      id,
		Table:   table,
		KeyType: parseConfigKeyType(keyType),
		Key:     key,
		Value:   value,
	}, nil
}
