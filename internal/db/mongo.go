package db

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostsCollection 是远程文档库中留言集合的名称。
const PostsCollection = "posts"

// Mongo 持有远程文档库的连接与留言集合。
type Mongo struct {
	Client *mongo.Client
	Posts  *mongo.Collection
}

// ConnectMongo 连接 MongoDB、验证连通性并确保排序索引存在。
func ConnectMongo(ctx context.Context, uri, database string, timeout time.Duration) (*Mongo, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(database) == "" {
		database = "classboard"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(serverAPI).
		SetTimeout(timeout)

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Database("admin").RunCommand(connectCtx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Printf("[db] connected to mongo database %s", database)

	posts := client.Database(database).Collection(PostsCollection)
	if _, err := posts.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	}); err != nil {
		log.Printf("[db] create posts index failed: %v", err)
	}

	return &Mongo{Client: client, Posts: posts}, nil
}

// Close 断开与 MongoDB 的连接。
func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
