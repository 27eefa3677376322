// Command keyfs exposes the filesystem operations over a chosen object
// store from the command line.
//
//	keyfs -backend=mem -home=home/me mkdir '~~/reports'
//	keyfs -backend=bolt -db=objects.db -home=home/me put report.csv '~~/reports/report.csv'
//	keyfs -backend=s3 -s3.bucket=data -home=home/me ls /
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/keyfs-io/keyfs"
	"github.com/keyfs-io/keyfs/backend/aferostore"
	"github.com/keyfs-io/keyfs/backend/boltstore"
	"github.com/keyfs-io/keyfs/backend/memstore"
	"github.com/keyfs-io/keyfs/backend/s3store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run() error {
	var (
		backendKind string
		db          string
		dir         string
		home        string
		verbose     bool
		s3cfg       s3store.Config
	)

	flag.StringVar(&backendKind, "backend", envDefault("KEYFS_BACKEND", ""), "Object store to operate on (memory, bolt, dir, s3)")
	flag.StringVar(&db, "db", envDefault("KEYFS_DB", "keyfs.db"), "Database path / name when using the bolt backend")
	flag.StringVar(&dir, "dir", envDefault("KEYFS_DIR", "."), "Local directory to expose when using the dir backend")
	flag.StringVar(&home, "home", envDefault("KEYFS_HOME", ""), "Home directory key (required); the ~~ alias resolves here")
	flag.BoolVar(&verbose, "v", false, "Log a debug event per operation")
	flag.StringVar(&s3cfg.Bucket, "s3.bucket", envDefault("KEYFS_S3_BUCKET", ""), "Bucket when using the s3 backend")
	flag.StringVar(&s3cfg.Region, "s3.region", envDefault("AWS_REGION", "us-east-1"), "Region when using the s3 backend")
	flag.StringVar(&s3cfg.Endpoint, "s3.endpoint", envDefault("KEYFS_S3_ENDPOINT", ""), "Custom S3 endpoint (e.g. MinIO); empty for AWS")
	flag.BoolVar(&s3cfg.UsePathStyle, "s3.pathstyle", false, "Use path-style addressing (required for MinIO)")
	flag.Parse()

	// Static credentials come from the environment only; the SDK's default
	// chain applies when they are unset.
	s3cfg.AccessKey = os.Getenv("KEYFS_S3_ACCESS_KEY")
	s3cfg.SecretKey = os.Getenv("KEYFS_S3_SECRET_KEY")

	args := flag.Args()
	if len(args) == 0 {
		flag.PrintDefaults()
		fmt.Println()
		return fmt.Errorf("a command is required: ls, stat, cat, put, rm, mv, mkdir")
	}
	if home == "" {
		return fmt.Errorf("-home is required")
	}

	var store keyfs.ObjectStore
	switch backendKind {
	case "":
		flag.PrintDefaults()
		fmt.Println()
		return fmt.Errorf("-backend is required")

	case "bolt":
		var err error
		store, err = boltstore.NewFile(db)
		if err != nil {
			return err
		}

	case "dir":
		base := afero.NewBasePathFs(afero.NewOsFs(), dir)
		var err error
		store, err = aferostore.New(base)
		if err != nil {
			return err
		}

	case "mem", "memory":
		store = memstore.New()

	case "s3":
		var err error
		store, err = s3store.New(s3cfg)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown backend %q", backendKind)
	}

	logger := zap.NewNop()
	if verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	}

	fs, err := keyfs.New(store, keyfs.Key(home), keyfs.WithLogger(logger))
	if err != nil {
		return err
	}
	defer fs.Close()

	cmd, args := args[0], args[1:]
	switch cmd {
	case "ls":
		return cmdList(fs, args)
	case "stat":
		return cmdStat(fs, args)
	case "cat":
		return cmdCat(fs, args)
	case "put":
		return cmdPut(fs, args)
	case "rm":
		return cmdRemove(fs, args)
	case "mv":
		return cmdMove(fs, args)
	case "mkdir":
		return cmdMkdir(fs, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func one(args []string, usage string) (keyfs.Path, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: %s", usage)
	}
	return keyfs.Path(args[0]), nil
}

func cmdList(fs *keyfs.FileSystem, args []string) error {
	p, err := one(args, "keyfs ls <path>")
	if err != nil {
		return err
	}
	statuses, err := fs.ListStatus(p)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		kind := "-"
		if st.Dir {
			kind = "d"
		}
		fmt.Printf("%s %12d  %s  %s\n", kind, st.Size, st.ModTime.Format("2006-01-02 15:04:05"), st.Path)
	}
	return nil
}

func cmdStat(fs *keyfs.FileSystem, args []string) error {
	p, err := one(args, "keyfs stat <path>")
	if err != nil {
		return err
	}
	st, err := fs.Stat(p)
	if err != nil {
		return err
	}
	fmt.Println("path:      ", st.Path)
	fmt.Println("directory: ", st.Dir)
	fmt.Println("size:      ", st.Size)
	fmt.Println("modified:  ", st.ModTime)
	if st.Durability > 0 {
		fmt.Println("durability:", st.Durability)
	}
	return nil
}

func cmdCat(fs *keyfs.FileSystem, args []string) error {
	p, err := one(args, "keyfs cat <path>")
	if err != nil {
		return err
	}
	r, err := fs.Open(p)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(os.Stdout, r)
	return err
}

func cmdPut(fs *keyfs.FileSystem, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: keyfs put <local> <path> [durability]")
	}
	durability := 0
	if len(args) == 3 {
		var err error
		durability, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid durability %q", args[2])
		}
	}

	local, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer local.Close()

	w, err := fs.Create(keyfs.Path(args[1]), true, durability)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, local); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func cmdRemove(fs *keyfs.FileSystem, args []string) error {
	recursive := false
	if len(args) > 0 && args[0] == "-r" {
		recursive = true
		args = args[1:]
	}
	p, err := one(args, "keyfs rm [-r] <path>")
	if err != nil {
		return err
	}
	ok, err := fs.Delete(p, recursive)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s: nothing deleted\n", p)
	}
	return nil
}

func cmdMove(fs *keyfs.FileSystem, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: keyfs mv <src> <dst>")
	}
	_, err := fs.Rename(keyfs.Path(args[0]), keyfs.Path(args[1]))
	return err
}

func cmdMkdir(fs *keyfs.FileSystem, args []string) error {
	p, err := one(args, "keyfs mkdir <path>")
	if err != nil {
		return err
	}
	_, err = fs.Mkdirs(p)
	return err
}
