package followers

import (
	"context"
	"errors"
	"time"

	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const profilesCollection = "profiles"

// profileDoc profiles 集合：每个用户一条，followers 存粉丝的用户ID
type profileDoc struct {
	UserID    string   `bson:"userId"`
	Followers []string `bson:"followers"`
}

type Mongo struct {
	client *mongoutil.Client
	coll   *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string, timeout time.Duration) (*Mongo, error) {
	cli, err := mongoutil.Open(ctx, &mongoutil.Config{
		Uri:      uri,
		Database: database,
		AppName:  "rt-gateway",
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}
	return &Mongo{client: cli, coll: cli.Collection(profilesCollection)}, nil
}

func (m *Mongo) Followers(ctx context.Context, authorID string) ([]string, error) {
	var doc profileDoc
	err := m.coll.FindOne(ctx,
		bson.M{"userId": authorID},
		options.FindOne().SetProjection(bson.M{"userId": 1, "followers": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, noProfile(authorID)
	}
	if err != nil {
		return nil, errs.ErrLookup.WrapMsg("find profile", "author", authorID, "err", err)
	}
	return doc.Followers, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.client.Close(ctx)
}
