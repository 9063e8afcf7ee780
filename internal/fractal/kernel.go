package fractal

// KernelEntryPoint is the name of the kernel function in KernelSource.
const KernelEntryPoint = "mandelbrot"

// KernelSource is compiled at runtime by the compute pipeline. Arguments,
// in order: output image, center x, center y, scale x, scale y, iteration
// budget, width, height.
const KernelSource = `
#pragma OPENCL EXTENSION cl_khr_fp64 : enable

__kernel void mandelbrot(
    __global uchar4* out,
    const double center_x,
    const double center_y,
    const double scale_x,
    const double scale_y,
    const unsigned int max_iter,
    const unsigned int width,
    const unsigned int height)
{
    int x = get_global_id(0);
    int y = get_global_id(1);

    double cx = center_x + (x - width / 2.0) * scale_x;
    double cy = center_y + (y - height / 2.0) * scale_y;

    double zx = 0.0;
    double zy = 0.0;
    unsigned int iter = 0;

    while (zx * zx + zy * zy < 4.0 && iter < max_iter) {
        double tmp = zx * zx - zy * zy + cx;
        zy = 2.0 * zx * zy + cy;
        zx = tmp;
        iter++;
    }

    uchar4 color = (uchar4)(0, 0, 0, 255);
    if (iter < max_iter) {
        double t = (double)iter / (double)max_iter;
        double s = 1.0 - t;
        uchar r = (uchar)(9.0 * s * t * t * t * 255.0 + 10);
        uchar g = (uchar)(15.0 * s * s * t * t * 255.0 + 10);
        uchar b = (uchar)(9.0 * s * s * s * t * 255.0 + 10);
        color = (uchar4)(r, g, b, 255);
    }

    out[y * width + x] = color;
}
`
