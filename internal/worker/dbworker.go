package worker

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// DBConfig mirrors the connection fields the teacher's mysqlproxy/dbmgr
// generation reads off its own config (MysqlConf: Username, Password, IP,
// Port, Database, pool sizing) — grounded on
// src/servers/mysqlproxy/dbmgr/dbmgr.go's doConnect.
type DBConfig struct {
	Username    string
	Password    string
	Host        string
	Port        int
	Database    string
	Charset     string
	PoolMaxConn int
}

func (c DBConfig) dataSource() string {
	charset := c.Charset
	if charset == "" {
		charset = "utf8"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, charset)
}

// Query and Exec are the two request payload shapes dbWorker's Execute
// understands, mirroring dbmgr.go's QuerySql/ExecuteSql split.
type Query struct {
	SQL  string
	Args []interface{}
}

type Exec struct {
	SQL  string
	Args []interface{}
}

// QueryResult mirrors dbmgr.go's QuerySql return shape: column names plus
// each row rendered to strings, so the embedding layer never has to deal
// with database/sql's driver-specific scan types.
type QueryResult struct {
	Columns []string
	Rows    [][]string
}

// ExecResult mirrors dbmgr.go's ExecuteSql return shape.
type ExecResult struct {
	LastInsertID int64
	RowsAffected int64
}

// dbWorker is the Connector implementation spec.md §1 calls "exemplified
// by a database worker": the blocking resource is a *sql.DB, handshake is
// a ping loop (MySQL's own handshake is hidden inside the driver, so
// Connect here surfaces it via Ping, the idiomatic database/sql way to
// force and observe the handshake), and Execute dispatches on whether the
// request is a Query or an Exec.
type dbWorker struct {
	cfg DBConfig
	db  *sql.DB
}

// NewDBConnector builds a Connector usable with worker.New, grounded on
// MysqlMgr.doConnect/QuerySql/ExecuteSql.
func NewDBConnector(cfg DBConfig) Connector {
	return &dbWorker{cfg: cfg}
}

func (d *dbWorker) Connect() error {
	db, err := sql.Open("mysql", d.cfg.dataSource())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	maxOpen := d.cfg.PoolMaxConn
	if maxOpen <= 0 {
		maxOpen = 8
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	d.db = db
	return nil
}

func (d *dbWorker) Execute(req interface{}) (interface{}, error) {
	switch r := req.(type) {
	case Query:
		return d.query(r)
	case Exec:
		return d.exec(r)
	default:
		return nil, fmt.Errorf("dbworker: unsupported request type %T", req)
	}
}

func (d *dbWorker) query(q Query) (QueryResult, error) {
	stmt, err := d.db.Prepare(q.SQL)
	if err != nil {
		return QueryResult{}, classify(err)
	}
	defer stmt.Close()

	rows, err := stmt.Query(q.Args...)
	if err != nil {
		return QueryResult{}, classify(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{}, classify(err)
	}

	dst := make([]interface{}, len(columns))
	dstPtr := make([]interface{}, len(columns))
	for i := range dstPtr {
		dstPtr[i] = &dst[i]
	}

	result := QueryResult{Columns: columns}
	for rows.Next() {
		if err := rows.Scan(dstPtr...); err != nil {
			return QueryResult{}, classify(err)
		}
		row := make([]string, len(dst))
		for i, v := range dst {
			row[i] = fmt.Sprintf("%v", v)
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func (d *dbWorker) exec(e Exec) (ExecResult, error) {
	stmt, err := d.db.Prepare(e.SQL)
	if err != nil {
		return ExecResult{}, classify(err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(e.Args...)
	if err != nil {
		return ExecResult{}, classify(err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return ExecResult{}, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, classify(err)
	}
	return ExecResult{LastInsertID: lastID, RowsAffected: affected}, nil
}

func (d *dbWorker) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// classify maps a database/sql error to spec.md §7's taxonomy:
// sql.ErrConnDone and sql.ErrTxDone mean the connection itself is gone
// (worker_disconnected, triggers re-handshake); everything else is
// request-level (worker_request_failed, attached to the result).
func classify(err error) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return err
}
