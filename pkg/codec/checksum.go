package codec

// Checksum combine operations, ported from zlib's adler32_combine and
// crc32_combine.  They compute the checksum of a concatenation from
// the checksums of the two halves, which lets split streams be
// verified without re-hashing either part.

const adlerBase = 65521

// Adler32Combine returns the adler32 of the concatenation of two byte
// sequences given their individual checksums and the length of the
// second sequence.
func Adler32Combine(adler1, adler2 uint32, len2 int64) uint32 {
	if len2 < 0 {
		return 0xffffffff
	}
	rem := uint32(len2 % adlerBase)
	sum1 := adler1 & 0xffff
	sum2 := (rem * sum1) % adlerBase
	sum1 += (adler2 & 0xffff) + adlerBase - 1
	sum2 += ((adler1 >> 16) & 0xffff) + ((adler2 >> 16) & 0xffff) + adlerBase - rem
	if sum1 >= adlerBase {
		sum1 -= adlerBase
	}
	if sum1 >= adlerBase {
		sum1 -= adlerBase
	}
	if sum2 >= adlerBase<<1 {
		sum2 -= adlerBase << 1
	}
	if sum2 >= adlerBase {
		sum2 -= adlerBase
	}
	return sum1 | (sum2 << 16)
}

// crcPoly is the reflected IEEE CRC-32 polynomial.
const crcPoly = 0xedb88320

func gf2MatrixTimes(mat *[32]uint32, vec uint32) uint32 {
	var sum uint32
	for i := 0; vec != 0; i++ {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
	}
	return sum
}

func gf2MatrixSquare(square, mat *[32]uint32) {
	for n := 0; n < 32; n++ {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
}

// CRC32Combine returns the IEEE CRC-32 of the concatenation of two
// byte sequences given their individual checksums and the length of
// the second sequence.
func CRC32Combine(crc1, crc2 uint32, len2 int64) uint32 {
	if len2 <= 0 {
		return crc1
	}

	var even, odd [32]uint32

	// Operator for one zero bit.
	odd[0] = crcPoly
	row := uint32(1)
	for n := 1; n < 32; n++ {
		odd[n] = row
		row <<= 1
	}

	// Operators for two and four zero bits.
	gf2MatrixSquare(&even, &odd)
	gf2MatrixSquare(&odd, &even)

	// Apply len2 zeros to crc1, squaring the operator as the length
	// bits are walked.
	for {
		gf2MatrixSquare(&even, &odd)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&even, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}

		gf2MatrixSquare(&odd, &even)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&odd, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}

	return crc1 ^ crc2
}
