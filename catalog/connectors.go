package catalog

// Connector types shipped with the editor.
const (
	HelloWorld  = "hello_world"
	SQLite      = "sqlite"
	Postgres    = "postgres"
	Kafka       = "kafka"
	Snowflake   = "snowflake"
	Excel       = "excel"
	File        = "file"
	MycelialNet = "mycelial_net"
)

var builtin = []Descriptor{
	{
		Type:        HelloWorld,
		DisplayName: "Hello World",
		Source:      true,
		Destination: true,
		Fields: []Field{
			{Name: "message", Kind: KindString, Default: "Hello!"},
			{Name: "interval_milis", Kind: KindInt, Default: int64(5000)},
		},
	},
	{
		Type:        SQLite,
		DisplayName: "SQLite",
		Source:      true,
		Destination: true,
		Fields: []Field{
			{Name: "path", Kind: KindString, Default: ""},
			{Name: "tables", Kind: KindString, Default: "*"},
			{Name: "strict", Kind: KindBool, Default: true},
		},
	},
	{
		Type:        Postgres,
		DisplayName: "Postgres",
		Source:      true,
		Destination: true,
		Fields: []Field{
			{Name: "url", Kind: KindString, Default: ""},
			{Name: "schema", Kind: KindString, Default: "public"},
			{Name: "tables", Kind: KindString, Default: "*"},
			{Name: "poll_interval", Kind: KindInt, Default: int64(5)},
		},
	},
	{
		Type:        Kafka,
		DisplayName: "Kafka",
		Source:      true,
		Destination: true,
		Fields: []Field{
			{Name: "brokers", Kind: KindString, Default: "localhost:9092"},
			{Name: "topic", Kind: KindString, Default: ""},
			{Name: "group_id", Kind: KindString, Default: ""},
		},
	},
	{
		Type:        Snowflake,
		DisplayName: "Snowflake",
		Source:      true,
		Destination: true,
		Fields: []Field{
			{Name: "username", Kind: KindString, Default: ""},
			{Name: "password", Kind: KindString, Default: ""},
			{Name: "account_identifier", Kind: KindString, Default: ""},
			{Name: "warehouse", Kind: KindString, Default: ""},
			{Name: "database", Kind: KindString, Default: ""},
			{Name: "schema", Kind: KindString, Default: "PUBLIC"},
			{Name: "query", Kind: KindString, Default: ""},
			{Name: "delay", Kind: KindInt, Default: int64(5)},
		},
	},
	{
		Type:        Excel,
		DisplayName: "Excel",
		Source:      true,
		Fields: []Field{
			{Name: "path", Kind: KindString, Default: ""},
			{Name: "sheets", Kind: KindString, Default: "*"},
			{Name: "strict", Kind: KindBool, Default: true},
		},
	},
	{
		Type:        File,
		DisplayName: "File",
		Source:      true,
		Destination: true,
		Fields: []Field{
			{Name: "path", Kind: KindString, Default: ""},
		},
	},
	{
		Type:        MycelialNet,
		DisplayName: "Mycelial Network",
		Source:      true,
		Destination: true,
		FanOut:      true,
		Fields: []Field{
			{Name: "endpoint", Kind: KindString, Default: "http://localhost:7777/ingestion"},
			{Name: "token", Kind: KindString, Default: ""},
			{Name: "topic", Kind: KindString, Default: ""},
		},
	},
}

// Default returns the catalog of built-in connectors.
func Default() *Catalog {
	return New(builtin...)
}
