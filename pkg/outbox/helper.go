package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// InsertEventInTx 在事务中插入事件到 outbox（辅助函数）
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID *int64,
	routingKey string,
	payload interface{},
) error {
	return InsertTaggedEventInTx(ctx, tx, repo, aggregateType, aggregateID, routingKey, "", "", "", "", payload)
}

// InsertTaggedEventInTx 在事务中插入事件到 outbox，并携带发布所需的事件类型/版本/
// 分区键/内容编码元数据（供审计egress等需要 GZIP 压缩和固定消息头的流使用）。
func InsertTaggedEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID *int64,
	routingKey string,
	eventType string,
	eventVersion string,
	partitionKey string,
	contentEncoding string,
	payload interface{},
) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &Event{
		AggregateType:   aggregateType,
		AggregateID:     aggregateID,
		RoutingKey:      routingKey,
		Payload:         payloadJSON,
		Status:          "pending",
		EventType:       eventType,
		EventVersion:    eventVersion,
		PartitionKey:    partitionKey,
		ContentEncoding: contentEncoding,
	}

	return repo.InsertEvent(ctx, tx, event)
}
