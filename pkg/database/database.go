// Package database opens the connections behind the remote checkpoint stores.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/BartekS5/taprun/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// AppName tags checkpoint connections on the server side.
const AppName = "taprun"

// ConnectTimeout bounds connecting and the initial ping.
var ConnectTimeout = 10 * time.Second

// SQLServerDSN adds the app name to a sqlserver:// URL or ADO-style
// connection string unless the caller already set one.
func SQLServerDSN(connString string) (string, error) {
	if strings.HasPrefix(connString, "sqlserver://") {
		u, err := url.Parse(connString)
		if err != nil {
			return "", fmt.Errorf("invalid SQL Server URL: %w", err)
		}
		q := u.Query()
		if q.Get("app name") == "" {
			q.Set("app name", AppName)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	if strings.Contains(strings.ToLower(connString), "app name=") {
		return connString, nil
	}
	return strings.TrimSuffix(connString, ";") + ";app name=" + AppName, nil
}

func ConnectSQL(ctx context.Context, connString string) (*sql.DB, error) {
	dsn, err := SQLServerDSN(connString)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening SQL database: %w", err)
	}
	// A run touches the checkpoint table a handful of times.
	db.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to SQL database (ping failed): %w", err)
	}

	logger.Infof("Connected to MS SQL Server checkpoint store.")
	return db, nil
}

// MongoOptions builds client options for uri, defaulting the app name and
// server selection timeout when the URI leaves them out.
func MongoOptions(uri string) *options.ClientOptions {
	opts := options.Client().ApplyURI(uri)
	if opts.AppName == nil {
		opts.SetAppName(AppName)
	}
	if opts.ServerSelectionTimeout == nil {
		opts.SetServerSelectionTimeout(ConnectTimeout)
	}
	return opts
}

func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	opts := MongoOptions(connString)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid MongoDB connection string: %w", err)
	}
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("error creating MongoDB client: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
	}

	logger.Infof("Connected to MongoDB checkpoint store.")
	return client, nil
}
