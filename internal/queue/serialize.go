package queue

import (
	"encoding/json"
	"strconv"

	"github.com/erauner12/syncengine-go/internal/model"
)

// operationRow is the persisted shape of an Operation row: id, tableName,
// itemId, type, an optional item snapshot, and version.
type operationRow struct {
	ID        string       `json:"id"`
	TableName string       `json:"tableName"`
	ItemID    string       `json:"itemId"`
	Type      string       `json:"type"`
	Item      model.Item   `json:"item,omitempty"`
	Version   int          `json:"version"`
	Error     *errorRow    `json:"error,omitempty"`
}

type errorRow struct {
	Kind       string     `json:"kind"`
	Message    string     `json:"message"`
	ServerItem model.Item `json:"serverItem,omitempty"`
}

func operationTypeFromString(s string) model.OperationType {
	switch s {
	case "insert":
		return model.Insert
	case "update":
		return model.Update
	case "delete":
		return model.Delete
	default:
		return model.Insert
	}
}

func operationToItem(op *model.Operation) model.Item {
	row := operationRow{
		ID:        strconv.FormatInt(op.OperationID, 10),
		TableName: op.TableName,
		ItemID:    op.ItemID,
		Type:      op.Type.String(),
		Item:      op.Item,
		Version:   op.Version,
	}
	if op.Error != nil {
		row.Error = &errorRow{
			Kind:       op.Error.Kind,
			Message:    op.Error.Message,
			ServerItem: op.Error.ServerItem,
		}
	}

	// Round-trip through JSON so the stored Item matches exactly what a
	// generic DataSource (including the Postgres adapter) stores for any
	// other table.
	raw, _ := json.Marshal(row)
	var out model.Item
	_ = json.Unmarshal(raw, &out)
	return out
}

func itemToOperation(it model.Item) (*model.Operation, error) {
	raw, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	var row operationRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}

	opID, err := strconv.ParseInt(row.ID, 10, 64)
	if err != nil {
		return nil, err
	}

	op := &model.Operation{
		OperationID: opID,
		TableName:   row.TableName,
		ItemID:      row.ItemID,
		Type:        operationTypeFromString(row.Type),
		Item:        row.Item,
		Version:     row.Version,
	}
	if row.Error != nil {
		op.Error = &model.OpError{
			Kind:       row.Error.Kind,
			Message:    row.Error.Message,
			ServerItem: row.Error.ServerItem,
		}
	}
	return op, nil
}
