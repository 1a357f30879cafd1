package database

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLServerDSN(t *testing.T) {
	got, err := SQLServerDSN("sqlserver://sa:pw@localhost:1433?database=etl")
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, AppName, u.Query().Get("app name"))
	assert.Equal(t, "etl", u.Query().Get("database"))

	got, err = SQLServerDSN("sqlserver://sa:pw@localhost?app+name=custom")
	require.NoError(t, err)
	u, err = url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "custom", u.Query().Get("app name"))

	got, err = SQLServerDSN("server=localhost;user id=sa;password=pw;")
	require.NoError(t, err)
	assert.Equal(t, "server=localhost;user id=sa;password=pw;app name=taprun", got)

	got, err = SQLServerDSN("server=localhost;App Name=ops")
	require.NoError(t, err)
	assert.Equal(t, "server=localhost;App Name=ops", got)
}

func TestMongoOptionsDefaults(t *testing.T) {
	opts := MongoOptions("mongodb://localhost:27017")
	require.NotNil(t, opts.AppName)
	assert.Equal(t, AppName, *opts.AppName)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, ConnectTimeout, *opts.ServerSelectionTimeout)

	opts = MongoOptions("mongodb://localhost:27017/?appName=ops&serverSelectionTimeoutMS=2000")
	assert.Equal(t, "ops", *opts.AppName)
	assert.Equal(t, 2*time.Second, *opts.ServerSelectionTimeout)
}
