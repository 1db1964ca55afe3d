package writerbackends

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"time"

	"roundify/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpTarget is the parsed form of an sftp accessInfo map.
type sftpTarget struct {
	addr       string
	user       string
	auth       ssh.AuthMethod
	hostKey    ssh.HostKeyCallback
	remotePath string
}

func parseSFTPTarget(accessInfo map[string]string) (*sftpTarget, error) {
	host := accessInfo["host"]
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}
	t := &sftpTarget{
		addr:       net.JoinHostPort(host, port),
		user:       accessInfo["user"],
		remotePath: accessInfo["remotePath"],
	}
	if t.remotePath == "" && accessInfo["remoteDir"] != "" && accessInfo["filename"] != "" {
		t.remotePath = path.Join(accessInfo["remoteDir"], accessInfo["folder"], accessInfo["filename"])
	}
	if host == "" || t.user == "" || t.remotePath == "" {
		return nil, errors.New("missing required accessInfo keys: host, user, remotePath or remoteDir")
	}

	switch {
	case accessInfo["privateKey"] != "":
		signer, err := parseSigner(accessInfo["privateKey"])
		if err != nil {
			return nil, err
		}
		t.auth = ssh.PublicKeys(signer)
	case accessInfo["password"] != "":
		t.auth = ssh.Password(accessInfo["password"])
	default:
		return nil, errors.New("no auth method provided; set password or privateKey in accessInfo")
	}

	var err error
	if t.hostKey, err = hostKeyCallback(accessInfo["hostKey"]); err != nil {
		return nil, err
	}
	return t, nil
}

// parseSigner accepts a PEM key either raw or base64 encoded.
func parseSigner(key string) (ssh.Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		raw = []byte(key)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

func (t *sftpTarget) dial(ctx context.Context) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", t.addr, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, &ssh.ClientConfig{
		User:            t.user,
		Auth:            []ssh.AuthMethod{t.auth},
		HostKeyCallback: t.hostKey,
		Timeout:         10 * time.Second,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", t.addr, err)
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

// UploadToSFTPWithCreds mirrors a clip to a remote host over SFTP.
// accessInfo needs host, user and either remotePath or remoteDir (the
// artifact filename is appended). Optionally: port (default 22), password or
// privateKey (base64 or raw PEM), hostKey (authorized_keys line).
// The clip is written under a ".part" name and renamed once complete, so a
// reader on the remote side never sees a truncated file.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	t, err := parseSFTPTarget(accessInfo)
	if err != nil {
		return err
	}

	sshClient, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer client.Close()

	if dir := path.Dir(t.remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("ensure remote dir %s: %w", dir, err)
		}
	}

	partial := t.remotePath + ".part"
	f, err := client.Create(partial)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", partial, err)
	}
	if _, err := f.ReadFrom(reader); err != nil {
		f.Close()
		client.Remove(partial)
		return fmt.Errorf("copy to remote file %s: %w", partial, err)
	}
	if err := f.Close(); err != nil {
		client.Remove(partial)
		return fmt.Errorf("close remote file %s: %w", partial, err)
	}
	if err := client.PosixRename(partial, t.remotePath); err != nil {
		client.Remove(partial)
		return fmt.Errorf("rename %s: %w", partial, err)
	}

	logger.Infof("Mirrored clip to sftp://%s%s", t.addr, t.remotePath)
	return nil
}

// hostKeyCallback pins the server key when one is registered in
// authorized_keys format. Without one any key is accepted.
func hostKeyCallback(authorizedKey string) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(authorizedKey) == "" {
		logger.Warnf("sftp mirror has no hostKey registered; accepting any server key")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return nil, fmt.Errorf("parse host key: %w", err)
	}
	return ssh.FixedHostKey(pub), nil
}
