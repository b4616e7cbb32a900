package downloader

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
)

// Parameters of the NetEase web client's request encryption. The payload
// is AES-CBC encrypted twice (preset key, then nonce key) and the nonce
// key travels RSA-encrypted alongside it.
const (
	weapiPresetKey = "0CoJUm6Qyw8W8jud"
	weapiNonceKey  = "F3nws0dj1G5HfLKx"
	weapiIV        = "0102030405060708"
	weapiRSAExp    = "010001"
	weapiRSAMod    = "00e0b509f6259df8642dbc35662901477df22677ec152b5ff68ace615bb7b725152b3ab17a876aea8a5aa76d2e417629ec4ee341f56135fccf695280104e0312ecbda92557c93870114af6c9d05c4f7f0c3685b7a46bee255932575cce10b424d813cfe4875d3e82047b97ddef52741d546b8e289dc6935b3ece0462db0a22b8e7"
)

// weapiEncrypt builds the params/encSecKey form body for one weapi call
func weapiEncrypt(payload interface{}) (url.Values, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding weapi payload: %w", err)
	}

	first, err := aesEncryptCBC(raw, weapiPresetKey)
	if err != nil {
		return nil, err
	}
	second, err := aesEncryptCBC([]byte(first), weapiNonceKey)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("params", second)
	form.Set("encSecKey", rsaEncryptNoPadding(weapiNonceKey))
	return form, nil
}

func aesEncryptCBC(plaintext []byte, key string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("weapi aes key: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(weapiIV)).CryptBlocks(encrypted, padded)
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// rsaEncryptNoPadding is the web client's textbook RSA step: the reversed
// key bytes taken as a big integer, raised to e mod n, rendered as a
// 256-digit zero-padded lowercase hex string.
func rsaEncryptNoPadding(text string) string {
	reversed := []byte(text)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	m := new(big.Int).SetBytes(reversed)
	e, _ := new(big.Int).SetString(weapiRSAExp, 16)
	n, _ := new(big.Int).SetString(weapiRSAMod, 16)
	return fmt.Sprintf("%0256x", new(big.Int).Exp(m, e, n))
}
