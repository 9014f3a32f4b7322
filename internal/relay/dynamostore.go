package relay

import (
	"context"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nudgexfer/nudge/pkg/wire"
)

// dynamoItem is the DynamoDB projection of a FileOffer. The hash and
// host fields need an explicit "set" companion because DynamoDB has no
// native representation of AnonymousString's optional-string semantics.
type dynamoItem struct {
	Passphrase     string `dynamodbav:"passphrase"`
	FileSize       uint64 `dynamodbav:"file_size"`
	FileName       string `dynamodbav:"file_name"`
	FileHash       string `dynamodbav:"file_hash"`
	FileHashSet    bool   `dynamodbav:"file_hash_set"`
	SenderHost     string `dynamodbav:"sender_host"`
	SenderHostSet  bool   `dynamodbav:"sender_host_set"`
	SenderEndpoint string `dynamodbav:"sender_endpoint"`
	CreatedAtUnix  int64  `dynamodbav:"created_at"`
	ExpiresAtUnix  int64  `dynamodbav:"expires_at"`
}

// DynamoStore is an optional Store backend for a relay deployment that
// spans multiple processes behind a UDP load balancer, sharing live
// offers through a DynamoDB table rather than an in-process map. The
// table's `expires_at` attribute doubles as a DynamoDB TTL attribute,
// but Get still checks CreatedAt against the configured ttl itself:
// DynamoDB's own TTL sweep is best-effort and can lag by hours, and
// §4.3's age-out policy must hold the moment an offer goes stale.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewDynamoStore wraps a dynamodb.Client against the named table,
// evicting offers older than ttl.
func NewDynamoStore(client *dynamodb.Client, table string, ttl time.Duration) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
		ttl:    ttl,
		log:    log.With().Str("component", "relay.dynamostore").Logger(),
	}
}

func (d *DynamoStore) Get(passphrase string) (*FileOffer, bool) {
	out, err := d.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: &d.table,
		Key: map[string]types.AttributeValue{
			"passphrase": &types.AttributeValueMemberS{Value: passphrase},
		},
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("dynamodb GetItem failed")
		return nil, false
	}
	if out.Item == nil {
		return nil, false
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		d.log.Warn().Err(err).Msg("failed to unmarshal offer item")
		return nil, false
	}

	createdAt := time.Unix(item.CreatedAtUnix, 0)
	if time.Since(createdAt) > d.ttl {
		d.Delete(passphrase)
		return nil, false
	}

	endpoint, err := net.ResolveUDPAddr("udp", item.SenderEndpoint)
	if err != nil {
		d.log.Warn().Err(err).Str("endpoint", item.SenderEndpoint).Msg("stored sender endpoint is unparseable")
		return nil, false
	}

	offer := &FileOffer{
		FileSize:       item.FileSize,
		FileName:       item.FileName,
		SenderEndpoint: endpoint,
		CreatedAt:      createdAt,
	}
	if item.FileHashSet {
		offer.FileHash = wire.Anon(item.FileHash)
	}
	if item.SenderHostSet {
		offer.SenderHost = wire.Anon(item.SenderHost)
	}
	return offer, true
}

func (d *DynamoStore) Put(passphrase string, offer *FileOffer) {
	fileHash, fileHashSet := offer.FileHash.Value()
	senderHost, senderHostSet := offer.SenderHost.Value()

	av, err := attributevalue.MarshalMap(dynamoItem{
		Passphrase:     passphrase,
		FileSize:       offer.FileSize,
		FileName:       offer.FileName,
		FileHash:       fileHash,
		FileHashSet:    fileHashSet,
		SenderHost:     senderHost,
		SenderHostSet:  senderHostSet,
		SenderEndpoint: offer.SenderEndpoint.String(),
		CreatedAtUnix:  offer.CreatedAt.Unix(),
		ExpiresAtUnix:  offer.CreatedAt.Add(d.ttl).Unix(),
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to marshal offer item")
		return
	}

	if _, err := d.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: &d.table,
		Item:      av,
	}); err != nil {
		d.log.Warn().Err(err).Msg("dynamodb PutItem failed")
	}
}

func (d *DynamoStore) Delete(passphrase string) {
	if _, err := d.client.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: &d.table,
		Key: map[string]types.AttributeValue{
			"passphrase": &types.AttributeValueMemberS{Value: passphrase},
		},
	}); err != nil {
		d.log.Warn().Err(err).Msg("dynamodb DeleteItem failed")
	}
}
